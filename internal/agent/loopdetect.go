package agent

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
)

// loopWarnThreshold is how many times the same tool call (name + args) can
// repeat with an identical result before the model gets a nudge to change
// strategy; loopCriticalThreshold is when the loop gives up entirely.
const (
	loopWarnThreshold     = 3
	loopCriticalThreshold = 5
)

// toolLoopState detects a model stuck calling the same tool with the same
// arguments and getting the same (no-progress) result back, so the loop
// doesn't burn its whole iteration budget on a stuck agent.
type toolLoopState struct {
	callCounts   map[string]int
	resultHashes map[string]string
	repeats      map[string]int
}

func (s *toolLoopState) record(name string, args map[string]interface{}) string {
	if s.callCounts == nil {
		s.callCounts = make(map[string]int)
		s.resultHashes = make(map[string]string)
		s.repeats = make(map[string]int)
	}
	raw, _ := json.Marshal(args)
	hash := hashArgs(name, raw)
	s.callCounts[hash]++
	return hash
}

func (s *toolLoopState) recordResult(argsHash, result string) {
	resultHash := hashArgs("", []byte(result))
	if s.resultHashes[argsHash] == resultHash {
		s.repeats[argsHash]++
	} else {
		s.repeats[argsHash] = 0
	}
	s.resultHashes[argsHash] = resultHash
}

// detect returns a level ("", "warning", "critical") and a human-readable
// message once a call+result pair has repeated enough times to be stuck.
func (s *toolLoopState) detect(name, argsHash string) (level, message string) {
	n := s.repeats[argsHash]
	switch {
	case n >= loopCriticalThreshold:
		return "critical", fmt.Sprintf("%s has been called with identical arguments %d times in a row with no new result", name, n+1)
	case n >= loopWarnThreshold:
		return "warning", fmt.Sprintf("You've called %s with the same arguments %d times and gotten the same result — try a different approach.", name, n+1)
	default:
		return "", ""
	}
}

func hashArgs(name string, raw []byte) string {
	h := sha256.New()
	h.Write([]byte(name))
	h.Write(raw)
	return hex.EncodeToString(h.Sum(nil))
}
