package genai

// CallKind tags the outcome of a single generation attempt, so the retry loop
// branches on a tag instead of inspecting error shapes.
type CallKind int

const (
	// CallOK means the provider returned usable text.
	CallOK CallKind = iota
	// CallRateLimited means the provider signalled backoff; retryable.
	CallRateLimited
	// CallFailed covers every non-retryable failure.
	CallFailed
	// CallCanceled means the caller abandoned the request; not a failure.
	CallCanceled
)

// CallResult is the tagged outcome of one generation call. Text carries the
// full response on CallOK and whatever was accumulated before cancellation on
// CallCanceled.
type CallResult struct {
	Kind CallKind
	Text string
	Err  error
}

func ok(text string) CallResult        { return CallResult{Kind: CallOK, Text: text} }
func rateLimited(err error) CallResult { return CallResult{Kind: CallRateLimited, Err: err} }
func failed(err error) CallResult      { return CallResult{Kind: CallFailed, Err: err} }
func canceled(partial string) CallResult {
	return CallResult{Kind: CallCanceled, Text: partial}
}
