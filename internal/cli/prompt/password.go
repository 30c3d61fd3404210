package prompt

import (
	"errors"

	"github.com/manifoldco/promptui"
)

// ErrPasswordMismatch is returned when the confirmation differs.
var ErrPasswordMismatch = errors.New("passwords do not match")

// Password reads a masked password.
func Password(label string) (string, error) {
	p := promptui.Prompt{
		Label: label,
		Mask:  '*',
	}
	result, err := p.Run()
	return result, wrapError(err)
}

// NewPassword reads a password accepted by validate, then asks for it
// again and returns it when both entries match.
func NewPassword(validate func(string) error) (string, error) {
	p := promptui.Prompt{
		Label:    "Password",
		Mask:     '*',
		Validate: validate,
	}
	password, err := p.Run()
	if err != nil {
		return "", wrapError(err)
	}

	confirm, err := Password("Confirm password")
	if err != nil {
		return "", err
	}
	if password != confirm {
		return "", ErrPasswordMismatch
	}
	return password, nil
}
