package protocol

// Method names recognized by the gateway's dispatch table. Unknown methods
// return {ok:false, error:{code:"UNKNOWN_METHOD"}}.
const (
	// Handshake & liveness.
	MethodPing    = "ping"
	MethodConnect = "connect"

	// Chat.
	MethodChatSend = "chat.send"

	// Agent / provider status.
	MethodAgentStatus    = "agent.status"
	MethodAgentModel     = "agent.model"
	MethodProviderStatus = "provider.status"

	// Sessions.
	MethodSessionsList = "sessions.list"
	MethodSessionsGet  = "sessions.get"

	// Memory.
	MethodMemorySearch = "memory.search"
	MethodMemoryLearn  = "memory.learn"
	MethodMemoryForget = "memory.forget"

	// Scheduler (cron jobs).
	MethodCronList   = "cron.list"
	MethodCronAdd    = "cron.add"
	MethodCronRemove = "cron.remove"

	// Terminal.
	MethodTerminalExec      = "terminal.exec"
	MethodTerminalCreate    = "terminal.create"
	MethodTerminalWrite     = "terminal.write"
	MethodTerminalRead      = "terminal.read"
	MethodTerminalKill      = "terminal.kill"
	MethodTerminalList      = "terminal.list"
	MethodTerminalExecBg    = "terminal.exec_bg"
	MethodTerminalJobStatus = "terminal.job_status"
	MethodTerminalJobList   = "terminal.job_list"
	MethodTerminalJobKill   = "terminal.job_kill"

	// System.
	MethodSystemVersion     = "system.version"
	MethodSystemCheckUpdate = "system.check_update"
	MethodSystemUpdate      = "system.update"
)

// Methods is the set of every recognized method name, used by the dispatch
// table to answer UNKNOWN_METHOD without a reflection-based lookup.
var Methods = []string{
	MethodPing, MethodConnect,
	MethodChatSend,
	MethodAgentStatus, MethodAgentModel, MethodProviderStatus,
	MethodSessionsList, MethodSessionsGet,
	MethodMemorySearch, MethodMemoryLearn, MethodMemoryForget,
	MethodCronList, MethodCronAdd, MethodCronRemove,
	MethodTerminalExec, MethodTerminalCreate, MethodTerminalWrite, MethodTerminalRead,
	MethodTerminalKill, MethodTerminalList, MethodTerminalExecBg,
	MethodTerminalJobStatus, MethodTerminalJobList, MethodTerminalJobKill,
	MethodSystemVersion, MethodSystemCheckUpdate, MethodSystemUpdate,
}

// ErrUnknownMethod is the error code returned for unrecognized methods.
const ErrUnknownMethod = "UNKNOWN_METHOD"
