package main

import (
	"context"

	"github.com/google/uuid"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/microsoft"

	"github.com/schoolsuite/absence-cover-duty/internal/database"
	"github.com/schoolsuite/absence-cover-duty/internal/directory"
	"github.com/schoolsuite/absence-cover-duty/internal/notify"
)

// notifyProfiles are the named OAuth profiles C6 maintains a token for:
// "absence" backs the sick-leave attachment archive (C5) and the
// admin/teacher email notifications (C6); "behaviour" is provisioned for
// the out-of-scope incident-reporting integration so its token cache
// entry is ready before that feature lands.
var notifyProfiles = []string{"absence", "behaviour"}

// newTokenCache constructs a notify.TokenCache persisted through store and
// registers every named profile's client-credentials config against the
// AzureAD v2 endpoint for cfg.DriveTenantID.
func newTokenCache(store *database.OAuthTokenStore, cfg *Config) *notify.TokenCache {
	cache := notify.NewTokenCache(store)
	for _, profile := range notifyProfiles {
		cache.RegisterProfile(profile, &oauth2.Config{
			ClientID:     cfg.DriveClientID,
			ClientSecret: cfg.DriveClientSecret,
			Endpoint:     microsoft.AzureADEndpoint(cfg.DriveTenantID),
			Scopes:       []string{"https://graph.microsoft.com/.default"},
		})
	}
	return cache
}

// adminEmailsFunc returns every administrator email for the tenant
// broadcast notification leaves.Engine sends on a new submission.
func adminEmailsFunc(dir *directory.Service) func(ctx context.Context, tenantID uuid.UUID) ([]string, error) {
	return func(ctx context.Context, tenantID uuid.UUID) ([]string, error) {
		var emails []string
		for _, role := range []directory.Role{directory.RoleAdmin, directory.RoleAdministrator} {
			teachers, err := dir.ListTeachersByRole(ctx, tenantID, role)
			if err != nil {
				return nil, err
			}
			for _, t := range teachers {
				if t.Email != "" {
					emails = append(emails, t.Email)
				}
			}
		}
		return emails, nil
	}
}

// gradeEmailsFunc returns the grade_lead_<grade> teachers' emails for the
// per-grade sick-leave alert.
func gradeEmailsFunc(dir *directory.Service) func(ctx context.Context, tenantID uuid.UUID, grade string) ([]string, error) {
	return func(ctx context.Context, tenantID uuid.UUID, grade string) ([]string, error) {
		teachers, err := dir.ListTeachersByRole(ctx, tenantID, directory.Role("grade_lead_"+grade))
		if err != nil {
			return nil, err
		}
		var emails []string
		for _, t := range teachers {
			if t.Email != "" {
				emails = append(emails, t.Email)
			}
		}
		return emails, nil
	}
}
