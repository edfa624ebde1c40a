package model

// Usage is the authoritative daily message counter for a user. Current is
// only ever advanced by the remote increment operation; clients never bump
// it locally.
type Usage struct {
	Current int `json:"current"`
	Limit   int `json:"limit"`
}

// Exceeded reports whether the counter has gone past its cap. Seeing this
// after an increment means the server-side quota system let one through; it
// is a hard failure, never clamped.
func (u Usage) Exceeded() bool {
	return u.Current > u.Limit
}

// Remaining returns the number of messages left in the window, never
// negative.
func (u Usage) Remaining() int {
	if r := u.Limit - u.Current; r > 0 {
		return r
	}
	return 0
}
