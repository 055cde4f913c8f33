package queue

import "strings"

const (
	// SubjectTasks covers every task subject held by the work stream.
	SubjectTasks = "journey.tasks.>"
	SubjectJoin  = "journey.tasks.join"
	// SubjectEventsAll matches the events of every request.
	SubjectEventsAll = "journey.events.*"

	subjectProviderPrefix = "journey.tasks.provider."
	subjectEventsPrefix   = "journey.events."
)

func SubjectProvider(name string) string {
	return subjectProviderPrefix + subjectToken(name)
}

func SubjectEvents(requestID string) string {
	return subjectEventsPrefix + subjectToken(requestID)
}

// RequestIDFromSubject extracts the request id of an events subject.
func RequestIDFromSubject(subject string) (string, bool) {
	id, ok := strings.CutPrefix(subject, subjectEventsPrefix)
	return id, ok && id != ""
}

func subjectToken(s string) string {
	s = strings.TrimSpace(s)
	// NATS token cannot contain spaces, '>', '*', or '.'
	repl := strings.NewReplacer(" ", "_", ".", "_", ">", "_", "*", "_", "/", "_", "\t", "_")
	s = repl.Replace(s)
	if s == "" {
		s = "_"
	}
	return s
}

// matchSubject reports whether subject matches pattern using NATS wildcard
// rules: "*" matches one token, a trailing ">" matches one or more.
func matchSubject(pattern, subject string) bool {
	p := strings.Split(pattern, ".")
	s := strings.Split(subject, ".")
	for i, tok := range p {
		if tok == ">" {
			return i == len(p)-1 && len(s) > i
		}
		if i >= len(s) {
			return false
		}
		if tok != "*" && tok != s[i] {
			return false
		}
	}
	return len(p) == len(s)
}
