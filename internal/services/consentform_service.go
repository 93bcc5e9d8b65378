package services

import (
	"context"
	"errors"
	"fmt"

	"github.com/sirupsen/logrus"

	"github.com/openrds/snowball/internal/models"
	"github.com/openrds/snowball/internal/store"
)

// ConsentFormStore is the form manager's slice of the persistence gateway.
type ConsentFormStore interface {
	SaveConsentForm(ctx context.Context, data []byte, comments, modifier string) (int, error)
	GetConsentForm(ctx context.Context, version int) (*models.ConsentFormVersion, error)
	ListConsentForms(ctx context.Context) ([]*models.ConsentFormMeta, error)
}

// ConsentForms manages the versioned study consent form PDF. Versions are
// immutable once uploaded; a new upload always appends.
type ConsentForms struct {
	store ConsentFormStore
	log   *logrus.Logger
}

func NewConsentForms(st ConsentFormStore, log *logrus.Logger) *ConsentForms {
	return &ConsentForms{store: st, log: log}
}

// Upload stores a new form version and returns the version number it was
// assigned. Blank comments and modifier default to "N/A".
func (cf *ConsentForms) Upload(ctx context.Context, data []byte, comments, modifier string) (int, error) {
	if len(data) == 0 {
		return 0, NewInvalidError("Consent form file is missing")
	}
	if comments == "" {
		comments = "N/A"
	}
	if modifier == "" {
		modifier = "N/A"
	}
	version, err := cf.store.SaveConsentForm(ctx, data, comments, modifier)
	if err != nil {
		return 0, fmt.Errorf("save consent form: %w", err)
	}
	cf.log.Infof("Stored consent form version %d by %s", version, modifier)
	return version, nil
}

// Fetch returns one stored version with its payload. A non-positive version
// selects the latest upload.
func (cf *ConsentForms) Fetch(ctx context.Context, version int) (*models.ConsentFormVersion, error) {
	form, err := cf.store.GetConsentForm(ctx, version)
	if errors.Is(err, store.ErrNotFound) {
		if version > 0 {
			return nil, NewNotFoundError(fmt.Sprintf("Failed to retrieve consent form version %d", version))
		}
		return nil, NewNotFoundError("No consent form was uploaded yet")
	}
	if err != nil {
		return nil, fmt.Errorf("get consent form: %w", err)
	}
	return form, nil
}

// History lists every uploaded version's metadata, newest first.
func (cf *ConsentForms) History(ctx context.Context) ([]*models.ConsentFormMeta, error) {
	metas, err := cf.store.ListConsentForms(ctx)
	if err != nil {
		return nil, fmt.Errorf("list consent forms: %w", err)
	}
	return metas, nil
}
