package authcore

// Authorize reports whether role holds permission according to the
// configured role table. The table maps permission names to the roles
// holding them, so adding a permission is a data change, not a code
// change. Unknown permissions and roles are denied.
func (e *Engine) Authorize(role, permission string) error {
	for _, allowed := range e.config.Account.Roles[permission] {
		if allowed == role {
			return nil
		}
	}
	return ErrPermissionDenied
}
