package providers

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awssigner "github.com/aws/aws-sdk-go-v2/aws/signer/v4"
	"github.com/aws/aws-sdk-go-v2/credentials"
)

// SigV4Provider signs each request with AWS Signature Version 4, the auth
// lifecycle spec.md names for providers fronted by an AWS-native endpoint
// (e.g. Bedrock's Anthropic-compatible invoke API). Credentials are the
// static keys passed to NewSigV4Provider; the module never reads them out
// of the TOML config file.
type SigV4Provider struct {
	region       string
	host         string // full https://host, no trailing slash
	defaultModel string
	creds        aws.CredentialsProvider
	client       *http.Client
	retryConfig  RetryConfig
}

// NewSigV4Provider constructs a provider signing against host in region.
// With an empty accessKeyID no credentials are set and requests are sent
// unsigned; no environment, shared-config or role lookup is made.
func NewSigV4Provider(region, host, defaultModel, accessKeyID, secretAccessKey, sessionToken string) *SigV4Provider {
	var creds aws.CredentialsProvider
	if accessKeyID != "" {
		creds = credentials.NewStaticCredentialsProvider(accessKeyID, secretAccessKey, sessionToken)
	}
	return &SigV4Provider{
		region: region, host: strings.TrimRight(host, "/"), defaultModel: defaultModel,
		creds: creds, client: &http.Client{Timeout: 120 * time.Second}, retryConfig: DefaultRetryConfig(),
	}
}

func (p *SigV4Provider) Name() string        { return "sigv4" }
func (p *SigV4Provider) DefaultModel() string { return p.defaultModel }

func (p *SigV4Provider) Chat(ctx context.Context, req ChatRequest) (*ChatResponse, error) {
	model := req.Model
	if model == "" {
		model = p.defaultModel
	}
	body := anthropicStyleBody(model, req, false)

	return RetryDo(ctx, p.retryConfig, func() (*ChatResponse, error) {
		respBody, err := p.doSignedRequest(ctx, model, body)
		if err != nil {
			return nil, err
		}
		defer respBody.Close()
		var resp anthropicResponse
		if err := json.NewDecoder(respBody).Decode(&resp); err != nil {
			return nil, fmt.Errorf("sigv4: decode response: %w", err)
		}
		return anthropicResponseToChatResponse(&resp), nil
	})
}

// ChatStream is not offered over the signed invoke endpoint in this
// integration; Bedrock's streaming variant uses a distinct
// invoke-with-response-stream action with event-stream framing that would
// need its own decoder. Callers fall back to Chat and synthesize a single
// onChunk(Done) call, matching spec.md's allowance that streaming is a
// best-effort enhancement, not a per-provider guarantee.
func (p *SigV4Provider) ChatStream(ctx context.Context, req ChatRequest, onChunk func(StreamChunk)) (*ChatResponse, error) {
	resp, err := p.Chat(ctx, req)
	if err != nil {
		return nil, err
	}
	if onChunk != nil {
		onChunk(StreamChunk{Content: resp.Content, Done: true})
	}
	return resp, nil
}

func (p *SigV4Provider) doSignedRequest(ctx context.Context, model string, body map[string]interface{}) (io.ReadCloser, error) {
	data, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("sigv4: marshal request: %w", err)
	}

	url := fmt.Sprintf("%s/model/%s/invoke", p.host, model)
	httpReq, err := http.NewRequestWithContext(ctx, "POST", url, bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("sigv4: create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "application/json")

	if p.creds != nil {
		creds, err := p.creds.Retrieve(ctx)
		if err != nil {
			return nil, fmt.Errorf("sigv4: retrieve credentials: %w", err)
		}
		signer := awssigner.NewSigner()
		payloadHash := hashPayload(data)
		if err := signer.SignHTTP(ctx, creds, httpReq, payloadHash, "bedrock", p.region, time.Now()); err != nil {
			return nil, fmt.Errorf("sigv4: sign request: %w", err)
		}
	}

	resp, err := p.client.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("sigv4: request failed: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(resp.Body)
		resp.Body.Close()
		return nil, &HTTPError{Status: resp.StatusCode, Body: fmt.Sprintf("sigv4: %s", respBody),
			RetryAfter: ParseRetryAfter(resp.Header.Get("Retry-After"))}
	}
	return resp.Body, nil
}

// anthropicStyleBody builds an Anthropic-Messages-shaped body, since
// Bedrock's invoke API for Claude models accepts the same wire format
// minus the top-level "model" field (encoded in the URL path instead).
func anthropicStyleBody(model string, req ChatRequest, stream bool) map[string]interface{} {
	var messages []map[string]interface{}
	var systemBlocks []map[string]interface{}
	for _, msg := range req.Messages {
		switch msg.Role {
		case "system":
			systemBlocks = append(systemBlocks, map[string]interface{}{"type": "text", "text": msg.Content})
		default:
			messages = append(messages, map[string]interface{}{"role": msg.Role, "content": msg.Content})
		}
	}
	body := map[string]interface{}{
		"anthropic_version": "bedrock-2023-05-31",
		"max_tokens":        4096,
		"messages":          messages,
	}
	if len(systemBlocks) > 0 {
		body["system"] = systemBlocks
	}
	return body
}

func anthropicResponseToChatResponse(resp *anthropicResponse) *ChatResponse {
	result := &ChatResponse{FinishReason: "stop"}
	for _, block := range resp.Content {
		if block.Type == "text" {
			result.Content += block.Text
		}
	}
	result.Usage = &Usage{PromptTokens: resp.Usage.InputTokens, CompletionTokens: resp.Usage.OutputTokens,
		TotalTokens: resp.Usage.InputTokens + resp.Usage.OutputTokens}
	return result
}

func hashPayload(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}
