package user

// Principal is the authenticated caller on JWT-gated routes. On HMAC
// routes the user id comes from the signed body instead and no principal
// is attached.
type Principal struct {
	UserID string
}
