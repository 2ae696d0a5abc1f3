package repository

import "time"

type CallEndedBy string

const (
	CallEndedByCaller CallEndedBy = "caller"
	CallEndedByCallee CallEndedBy = "callee"
	CallEndedBySystem CallEndedBy = "system"
)

func NullIfEmpty(s string) any {
	if s == "" {
		return nil
	}
	return s
}

func NullTime(t *time.Time) any {
	if t == nil {
		return nil
	}
	return *t
}

func NullInt(n *int) any {
	if n == nil {
		return nil
	}
	return *n
}
