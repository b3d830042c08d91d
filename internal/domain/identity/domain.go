package identity

import (
	"context"
	"errors"
)

var (
	// ErrNetwork means the provider could not be reached.
	ErrNetwork = errors.New("identity provider unreachable")
	// ErrRejected means the provider answered but did not accept the credential.
	ErrRejected = errors.New("identity credential rejected")
)

type Identity struct {
	SubjectID   string
	Email       string
	DisplayName string
}

//go:generate mockgen -source=domain.go -destination=mocks/verifier_mock.go -package=mocks

type Verifier interface {
	Verify(ctx context.Context, credential string) (*Identity, error)
}
