// Package normalizer turns an inbound completion request into the frame a
// worker actually receives: trimmed message history, an injected format
// instruction when the caller didn't supply one, and per-worker system
// prompt / tool catalogue elision driven by content fingerprints.
package normalizer

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/chatrelay/broker/internal/brokererr"
	"github.com/chatrelay/broker/internal/wire"
	"github.com/chatrelay/broker/llm"
)

// FormatSentinel is injected as a synthesized system message when the
// caller's request contains no system message at all, so a worker driving
// a free-text chat UI still knows to emit the marker-delimited reply shape
// the response parser expects.
const FormatSentinel = "Respond using <content>...</content> and, if invoking tools, <tool_calls>[...]</tool_calls>."

// DigestSource abstracts the worker registry's per-worker cache fields so
// the normalizer can be tested without a live registry.
type DigestSource interface {
	Digests(workerID string) (system, tools string, ok bool)
}

// Result is what Normalize produces: the frame ready to send, plus the
// digests that must be committed to the worker's cache once the frame is
// actually delivered.
type Result struct {
	Frame         *wire.CompletionRequestFrame
	SystemDigest  string
	ToolsDigest   string
	SystemChanged bool
	ToolsChanged  bool
}

// ValidateRequest performs the claim-independent checks Normalize needs:
// every system message kept in order, and the conversation's last user
// message. It runs before a worker is claimed, so a request with no usable
// last user message fails fast with missing_user instead of first burning
// an idle-worker wait.
func ValidateRequest(messages []llm.Message) (systemMessages []llm.Message, lastUser llm.Message, err error) {
	return projectHistory(messages)
}

// Normalize synthesizes a format instruction if needed and decides
// prompt/tool elision against workerID's cached digests. systemMessages and
// lastUser are the result of a prior, successful ValidateRequest call.
func Normalize(req *llm.CompletionRequest, requestID, workerID string, systemMessages []llm.Message, lastUser llm.Message, digests DigestSource) Result {
	if len(systemMessages) == 0 {
		systemMessages = []llm.Message{{Role: llm.RoleSystem, Content: FormatSentinel}}
	}

	systemDigest := fingerprint(concatSystem(systemMessages))
	toolsDigest := fingerprint(concatTools(req.Tools))

	cachedSystem, cachedTools, _ := digests.Digests(workerID)

	elideSystem := cachedSystem != "" && cachedSystem == systemDigest
	elideTools := len(req.Tools) > 0 && cachedTools != "" && cachedTools == toolsDigest

	messages := make([]llm.Message, 0, len(systemMessages)+1)
	if !elideSystem {
		messages = append(messages, systemMessages...)
	}
	messages = append(messages, lastUser)

	frame := &wire.CompletionRequestFrame{
		Type:         wire.TypeCompletionRequest,
		RequestID:    requestID,
		Model:        req.Model,
		Messages:     messages,
		Temperature:  req.Temperature,
		MaxTokens:    req.MaxTokens,
		Stream:       req.Stream,
		SystemElided: elideSystem,
		ToolsElided:  elideTools,
	}
	if !elideTools {
		frame.Tools = req.Tools
	}

	return Result{
		Frame:         frame,
		SystemDigest:  systemDigest,
		ToolsDigest:   toolsDigest,
		SystemChanged: !elideSystem,
		ToolsChanged:  !elideTools && len(req.Tools) > 0,
	}
}

// Commit applies the digests from a successful send to updateSystem/
// updateTools, the registry's UpdateSystemDigest/UpdateToolsDigest. The
// prompt and tools caches are updated independently of each other: a
// request carrying no tools never touches the tools digest, and vice
// versa, so neither cache's staleness can force an eviction of the other.
func (r Result) Commit(workerID string, updateSystem, updateTools func(workerID, digest string) error) error {
	if r.SystemChanged {
		if err := updateSystem(workerID, r.SystemDigest); err != nil {
			return fmt.Errorf("commit system digest: %w", err)
		}
	}
	if r.ToolsChanged {
		if err := updateTools(workerID, r.ToolsDigest); err != nil {
			return fmt.Errorf("commit tools digest: %w", err)
		}
	}
	return nil
}

// projectHistory keeps every system message, in order, and only the last
// user message by position; assistant history and earlier user turns are
// dropped. It errors with ErrMissingUser when there is no last user message
// or the last one is empty, matching §4.5: a trailing empty user turn is a
// missing user message, not "use the previous one".
func projectHistory(messages []llm.Message) (systemMessages []llm.Message, lastUser llm.Message, err error) {
	var sawUser bool
	for _, m := range messages {
		switch m.Role {
		case llm.RoleSystem:
			systemMessages = append(systemMessages, m)
		case llm.RoleUser:
			lastUser = m
			sawUser = true
		}
	}
	if !sawUser || strings.TrimSpace(lastUser.Content) == "" {
		return nil, llm.Message{}, brokererr.ErrMissingUser
	}
	return systemMessages, lastUser, nil
}

func concatSystem(messages []llm.Message) string {
	var b strings.Builder
	for _, m := range messages {
		b.WriteString(m.Content)
		b.WriteByte('\n')
	}
	return b.String()
}

// concatTools returns the canonical JSON encoding of the entire tool
// catalogue, parameters included: two catalogues differing only in their
// JSON-Schema parameters must not fingerprint identically, or elideTools
// would tell a worker to reuse a stale schema.
func concatTools(tools []llm.ToolDef) string {
	data, err := json.Marshal(tools)
	if err != nil {
		return ""
	}
	return string(data)
}

// fingerprint collision-resistance only needs to be good enough to avoid
// accidental false-positive cache hits, not cryptographic; sha256 is used
// because it's already in the standard library and cheap at this size.
func fingerprint(s string) string {
	sum := sha256.Sum256([]byte(s))
	return hex.EncodeToString(sum[:])
}
