// Package validation checks account request input before it reaches the store.
//
// Rules:
//   - email: required, RFC 5322 address syntax, no display name
//   - firstName, lastName: required on registration, bounded length
//   - password: at least MinPasswordLength characters, bounded length
//   - profileImage: empty or an absolute http(s) URL
//
// Every failing field is reported, so clients can highlight all of them at once:
//
//	v := validation.NewValidator(nil)
//	if err := v.ValidateRegistration(email, first, last, password); err != nil {
//		httputil.WriteError(w, r, err) // 400 with one entry per field
//	}
package validation
