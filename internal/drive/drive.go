// Package drive archives sick-leave attachments into Microsoft Graph's
// OneDrive within rolling half-month folder windows. The upload/folder/
// share semantics are ported from the Python OneDriveClient this service
// replaces; the outbound-HTTP-with-timeout shape is grounded on
// noah-isme-sma-adp-api's CutoverService.ping.
package drive

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"regexp"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// ErrNotFound is returned by lookups that find no matching drive item.
var ErrNotFound = errors.New("drive: item not found")

const (
	graphBase = "https://graph.microsoft.com/v1.0"

	// smallFileLimit is the largest attachment uploaded via a single PUT;
	// anything bigger goes through a chunked upload session.
	smallFileLimit = 4 * 1024 * 1024
	// chunkSize is the per-request payload size for chunked uploads.
	chunkSize = 5 * 1024 * 1024
)

// TokenSource resolves an access token for a named OAuth profile. The
// Notifier (C6) is the concrete implementation; drive only needs this
// narrow slice of it.
type TokenSource interface {
	GetTokenSilent(ctx context.Context, profile string) (string, error)
}

// Client talks to Microsoft Graph for a single configured drive.
type Client struct {
	httpClient *http.Client
	driveID    string
	tokens     TokenSource
	profile    string
	log        zerolog.Logger
}

// NewClient constructs a Client for driveID, acquiring tokens from tokens
// under the named profile (conventionally "absence").
func NewClient(driveID string, tokens TokenSource, profile string, log zerolog.Logger) *Client {
	return &Client{
		httpClient: &http.Client{Timeout: 30 * time.Second},
		driveID:    driveID,
		tokens:     tokens,
		profile:    profile,
		log:        log.With().Str("component", "drive").Logger(),
	}
}

// sanitizeFilenamePattern strips characters Windows/Graph reject in a path
// segment.
var sanitizeFilenamePattern = regexp.MustCompile(`[\\/:*?"<>|]+`)

// SanitizeFilename replaces filesystem-hostile characters with underscores.
func SanitizeFilename(name string) string {
	cleaned := sanitizeFilenamePattern.ReplaceAllString(name, "_")
	cleaned = strings.Trim(cleaned, "_ ")
	if cleaned == "" {
		return "file"
	}
	return cleaned
}

func (c *Client) authorizedRequest(ctx context.Context, method, url string, body io.Reader) (*http.Request, error) {
	token, err := c.tokens.GetTokenSilent(ctx, c.profile)
	if err != nil {
		return nil, fmt.Errorf("drive: acquire token: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, method, url, body)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+token)
	return req, nil
}

func (c *Client) itemByPathURL(path string) string {
	return fmt.Sprintf("%s/drives/%s/root:/%s", graphBase, c.driveID, strings.Trim(path, "/"))
}

// driveItem is the subset of a Graph driveItem resource this client reads.
type driveItem struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// EnsureFolder walks path's segments, creating any that don't exist, and
// returns the id of the final segment's folder item. Folder creation uses
// conflictBehavior=rename so a concurrent creator never clobbers another
// tenant's folder of the same name.
func (c *Client) EnsureFolder(ctx context.Context, path string) (string, error) {
	segments := strings.Split(strings.Trim(path, "/"), "/")
	parentID := "root"
	built := ""

	for _, segment := range segments {
		if segment == "" {
			continue
		}
		built = strings.Trim(built+"/"+segment, "/")

		item, err := c.getItemByPath(ctx, built)
		if err == nil {
			parentID = item.ID
			continue
		}
		if !errors.Is(err, ErrNotFound) {
			return "", err
		}

		created, err := c.createFolder(ctx, parentID, segment)
		if err != nil {
			return "", err
		}
		parentID = created.ID
	}
	return parentID, nil
}

func (c *Client) getItemByPath(ctx context.Context, path string) (driveItem, error) {
	req, err := c.authorizedRequest(ctx, http.MethodGet, c.itemByPathURL(path), nil)
	if err != nil {
		return driveItem{}, err
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return driveItem{}, err
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return driveItem{}, ErrNotFound
	}
	if resp.StatusCode >= 300 {
		return driveItem{}, graphError("get item", resp)
	}
	var item driveItem
	if err := json.NewDecoder(resp.Body).Decode(&item); err != nil {
		return driveItem{}, err
	}
	return item, nil
}

func (c *Client) createFolder(ctx context.Context, parentID, name string) (driveItem, error) {
	url := fmt.Sprintf("%s/drives/%s/items/%s/children", graphBase, c.driveID, parentID)
	payload, _ := json.Marshal(map[string]any{
		"name":                              name,
		"folder":                            map[string]any{},
		"@microsoft.graph.conflictBehavior": "rename",
	})
	req, err := c.authorizedRequest(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return driveItem{}, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return driveItem{}, err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		return driveItem{}, graphError("create folder", resp)
	}
	var item driveItem
	if err := json.NewDecoder(resp.Body).Decode(&item); err != nil {
		return driveItem{}, err
	}
	return item, nil
}

// UploadResult describes a completed upload.
type UploadResult struct {
	ItemID string
	Name   string
}

// Upload puts content at folder path folderPath with name filename,
// replacing any existing file of the same name. Payloads at or below the
// small-file limit use a single PUT; larger payloads use a chunked upload
// session.
func (c *Client) Upload(ctx context.Context, folderPath, filename string, content []byte) (UploadResult, error) {
	if len(content) <= smallFileLimit {
		return c.uploadSimple(ctx, folderPath, filename, content)
	}
	return c.uploadLarge(ctx, folderPath, filename, content)
}

func (c *Client) uploadSimple(ctx context.Context, folderPath, filename string, content []byte) (UploadResult, error) {
	destPath := strings.Trim(folderPath, "/") + "/" + filename
	url := fmt.Sprintf("%s/drives/%s/root:/%s:/content?@microsoft.graph.conflictBehavior=replace", graphBase, c.driveID, destPath)

	req, err := c.authorizedRequest(ctx, http.MethodPut, url, bytes.NewReader(content))
	if err != nil {
		return UploadResult{}, err
	}
	req.Header.Set("Content-Type", "application/octet-stream")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return UploadResult{}, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		return UploadResult{}, graphError("upload small file", resp)
	}
	var item driveItem
	if err := json.NewDecoder(resp.Body).Decode(&item); err != nil {
		return UploadResult{}, err
	}
	return UploadResult{ItemID: item.ID, Name: item.Name}, nil
}

func (c *Client) uploadLarge(ctx context.Context, folderPath, filename string, content []byte) (UploadResult, error) {
	destPath := strings.Trim(folderPath, "/") + "/" + filename
	sessionURL := fmt.Sprintf("%s/drives/%s/root:/%s:/createUploadSession", graphBase, c.driveID, destPath)
	payload, _ := json.Marshal(map[string]any{
		"item": map[string]any{"@microsoft.graph.conflictBehavior": "replace"},
	})

	req, err := c.authorizedRequest(ctx, http.MethodPost, sessionURL, bytes.NewReader(payload))
	if err != nil {
		return UploadResult{}, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return UploadResult{}, err
	}
	var session struct {
		UploadURL string `json:"uploadUrl"`
	}
	decodeErr := json.NewDecoder(resp.Body).Decode(&session)
	closeErr := resp.Body.Close()
	if resp.StatusCode >= 300 {
		return UploadResult{}, graphError("create upload session", resp)
	}
	if decodeErr != nil {
		return UploadResult{}, decodeErr
	}
	if closeErr != nil {
		return UploadResult{}, closeErr
	}

	total := len(content)
	for offset := 0; offset < total; offset += chunkSize {
		end := offset + chunkSize
		if end > total {
			end = total
		}
		chunk := content[offset:end]

		chunkReq, err := http.NewRequestWithContext(ctx, http.MethodPut, session.UploadURL, bytes.NewReader(chunk))
		if err != nil {
			return UploadResult{}, err
		}
		chunkReq.Header.Set("Content-Length", fmt.Sprintf("%d", len(chunk)))
		chunkReq.Header.Set("Content-Range", fmt.Sprintf("bytes %d-%d/%d", offset, end-1, total))

		chunkResp, err := c.httpClient.Do(chunkReq)
		if err != nil {
			return UploadResult{}, err
		}

		final := end >= total
		var item driveItem
		decodeErr := json.NewDecoder(chunkResp.Body).Decode(&item)
		closeErr := chunkResp.Body.Close()

		switch chunkResp.StatusCode {
		case http.StatusAccepted:
			if final {
				return UploadResult{}, fmt.Errorf("drive: final chunk unexpectedly returned 202")
			}
			continue
		case http.StatusOK, http.StatusCreated:
			if !final {
				return UploadResult{}, fmt.Errorf("drive: non-final chunk unexpectedly completed the session")
			}
			if decodeErr != nil {
				return UploadResult{}, decodeErr
			}
			if closeErr != nil {
				return UploadResult{}, closeErr
			}
			return UploadResult{ItemID: item.ID, Name: item.Name}, nil
		default:
			return UploadResult{}, graphError("upload chunk", chunkResp)
		}
	}
	return UploadResult{}, fmt.Errorf("drive: upload session ended without a terminal response")
}

// Share invites recipients to read itemID without sending Graph's own
// notification email — the Notifier handles outbound messaging separately.
func (c *Client) Share(ctx context.Context, itemID string, recipients []string) error {
	if len(recipients) == 0 {
		return nil
	}
	url := fmt.Sprintf("%s/drives/%s/items/%s/invite", graphBase, c.driveID, itemID)

	invitePayload := make([]map[string]any, 0, len(recipients))
	for _, email := range recipients {
		invitePayload = append(invitePayload, map[string]any{"email": email})
	}
	payload, _ := json.Marshal(map[string]any{
		"recipients":     invitePayload,
		"roles":          []string{"read"},
		"sendInvitation": false,
		"requireSignIn":  false,
	})

	req, err := c.authorizedRequest(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		return graphError("share item", resp)
	}
	return nil
}

// DeleteItemByPath deletes the item at path, treating "already gone" (404)
// as success.
func (c *Client) DeleteItemByPath(ctx context.Context, path string) error {
	req, err := c.authorizedRequest(ctx, http.MethodDelete, c.itemByPathURL(path), nil)
	if err != nil {
		return err
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNoContent || resp.StatusCode == http.StatusNotFound {
		return nil
	}
	return graphError("delete item", resp)
}

func graphError(op string, resp *http.Response) error {
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
	return fmt.Errorf("drive: %s failed with status %d: %s", op, resp.StatusCode, string(body))
}
