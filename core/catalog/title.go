package catalog

import (
	"encoding/json"
	"fmt"
	"net/url"
	"strings"
)

// storefrontHostSuffix is the host suffix every title page lives under.
const storefrontHostSuffix = ".itch.io"

// Record is an owned-key entry as returned by the storefront API.
type Record struct {
	// ID is the download key id.
	ID int64 `json:"id"`
	// GameID is the remote title id.
	GameID int64 `json:"game_id"`
	// Game is the raw title metadata.
	Game json.RawMessage `json:"game"`
}

type gameInfo struct {
	Title string `json:"title"`
	URL   string `json:"url"`
	User  struct {
		Username string `json:"username"`
	} `json:"user"`
}

// Title is one purchased work and the identity needed to download it.
type Title struct {
	// DownloadKeyID is the purchase/download-key id.
	DownloadKeyID int64
	// GameID is the remote title id.
	GameID int64
	// Name is the display name.
	Name string
	// Publisher is the publisher's user name.
	Publisher string
	// Link is the title's web URL.
	Link string
	// Data is the raw metadata blob, persisted verbatim in the manifest.
	Data json.RawMessage

	publisherSlug string
	slug          string
}

// NewTitle builds a Title from an owned-key record.
func NewTitle(rec Record) (*Title, error) {
	if len(rec.Game) == 0 {
		return nil, fmt.Errorf("record %d has no game metadata", rec.ID)
	}

	var info gameInfo
	if err := json.Unmarshal(rec.Game, &info); err != nil {
		return nil, fmt.Errorf("failed to decode game metadata for record %d: %w", rec.ID, err)
	}

	publisherSlug, slug, err := ParseSlugs(info.URL)
	if err != nil {
		return nil, err
	}

	return &Title{
		DownloadKeyID: rec.ID,
		GameID:        rec.GameID,
		Name:          info.Title,
		Publisher:     info.User.Username,
		Link:          info.URL,
		Data:          rec.Game,
		publisherSlug: publisherSlug,
		slug:          slug,
	}, nil
}

// PublisherSlug returns the publisher segment of the title's URL.
func (t *Title) PublisherSlug() string {
	return t.publisherSlug
}

// Slug returns the title segment of the title's URL.
func (t *Title) Slug() string {
	return t.slug
}

// String returns "<publisher-slug>/<title-slug>".
func (t *Title) String() string {
	return t.publisherSlug + "/" + t.slug
}

// ParseSlugs extracts (publisher-slug, title-slug) from a URL of the form
// https://<publisher>.itch.io/<title>.
func ParseSlugs(link string) (string, string, error) {
	u, err := url.Parse(link)
	if err != nil {
		return "", "", fmt.Errorf("invalid title url %q: %w", link, err)
	}
	if u.Scheme != "https" && u.Scheme != "http" {
		return "", "", fmt.Errorf("invalid title url %q: unsupported scheme", link)
	}

	host := strings.ToLower(u.Hostname())
	if !strings.HasSuffix(host, storefrontHostSuffix) {
		return "", "", fmt.Errorf("invalid title url %q: not a storefront page", link)
	}
	publisher := strings.TrimSuffix(host, storefrontHostSuffix)
	slug := strings.Trim(u.Path, "/")

	if !ValidSlug(publisher) || !ValidSlug(slug) {
		return "", "", fmt.Errorf("invalid title url %q: cannot derive slugs", link)
	}
	return publisher, slug, nil
}

// ValidSlug reports whether s is usable as a single path segment.
func ValidSlug(s string) bool {
	if s == "" || s == "." || s == ".." {
		return false
	}
	return !strings.ContainsAny(s, `/\`) && !strings.ContainsRune(s, 0)
}
