// Package hf implements a read-only storage adapter over the Hugging Face Hub HTTP API.
//
// Object names address repository files as "<type>/<org>/<repo>/<path>", for example
// "datasets/openclimatefix/uk_pv/metadata.csv". The bucket argument is ignored.
package hf

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"regexp"
	"strconv"
	"strings"
	"time"

	storageAdapter "github.com/tigerroll/pvtruth/pkg/eval/adapter/storage"
	storageConfig "github.com/tigerroll/pvtruth/pkg/eval/adapter/storage/config"
	coreConfig "github.com/tigerroll/pvtruth/pkg/eval/core/config"
	"github.com/tigerroll/pvtruth/pkg/eval/support/util/exception"
	"github.com/tigerroll/pvtruth/pkg/eval/support/util/logger"
)

const (
	// ProviderType defines the type identifier for this provider.
	ProviderType = "hf"

	defaultEndpoint = "https://huggingface.co"
	defaultRevision = "main"
	defaultTimeout  = 10 * time.Minute
)

var linkNextRe = regexp.MustCompile(`<([^>]+)>;\s*rel="next"`)

// repoRef is an object name split into repository and in-repo path.
type repoRef struct {
	repoType string // "datasets", "spaces" or "models"
	repoID   string // "<org>/<repo>"
	path     string
}

// treeEntry is one element of the tree listing response.
type treeEntry struct {
	Type string `json:"type"`
	Path string `json:"path"`
	Size int64  `json:"size"`
}

type hfAdapter struct {
	cfg        storageConfig.StorageConfig
	name       string
	endpoint   string
	revision   string
	httpClient *http.Client
}

var _ storageAdapter.StorageConnection = (*hfAdapter)(nil)

// NewHFAdapter creates a connection to the Hub at cfg.Endpoint (default https://huggingface.co).
func NewHFAdapter(cfg storageConfig.StorageConfig, name string) (storageAdapter.StorageConnection, error) {
	endpoint := strings.TrimRight(cfg.Endpoint, "/")
	if endpoint == "" {
		endpoint = defaultEndpoint
	}
	if _, err := url.ParseRequestURI(endpoint); err != nil {
		return nil, fmt.Errorf("hf storage adapter '%s': invalid endpoint '%s': %w", name, cfg.Endpoint, err)
	}
	revision := cfg.Revision
	if revision == "" {
		revision = defaultRevision
	}
	timeout := defaultTimeout
	if cfg.Timeout != "" {
		d, err := time.ParseDuration(cfg.Timeout)
		if err != nil {
			return nil, fmt.Errorf("hf storage adapter '%s': invalid timeout '%s': %w", name, cfg.Timeout, err)
		}
		timeout = d
	}
	return &hfAdapter{
		cfg:        cfg,
		name:       name,
		endpoint:   endpoint,
		revision:   revision,
		httpClient: &http.Client{Timeout: timeout},
	}, nil
}

// NewHFProvider creates the provider for "hf" connections.
func NewHFProvider(cfg *coreConfig.Config) storageAdapter.StorageProvider {
	return storageAdapter.NewProvider(ProviderType, cfg, NewHFAdapter)
}

func (a *hfAdapter) Close() error {
	a.httpClient.CloseIdleConnections()
	return nil
}

func (a *hfAdapter) Type() string { return ProviderType }

func (a *hfAdapter) Name() string { return a.name }

// Upload is not supported.
func (a *hfAdapter) Upload(ctx context.Context, bucket, objectName string, data io.Reader, contentType string) error {
	return fmt.Errorf("hf storage adapter '%s': upload of '%s': %w", a.name, objectName, storageAdapter.ErrReadOnly)
}

// DeleteObject is not supported.
func (a *hfAdapter) DeleteObject(ctx context.Context, bucket, objectName string) error {
	return fmt.Errorf("hf storage adapter '%s': delete of '%s': %w", a.name, objectName, storageAdapter.ErrReadOnly)
}

// Download streams a file through the resolve endpoint, following redirects to the CDN.
func (a *hfAdapter) Download(ctx context.Context, bucket, objectName string) (io.ReadCloser, error) {
	ref, err := parseObjectName(objectName)
	if err != nil {
		return nil, err
	}
	resp, err := a.do(ctx, http.MethodGet, a.resolveURL(ref))
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != http.StatusOK {
		defer resp.Body.Close()
		return nil, a.statusError(resp, objectName)
	}
	logger.Debugf("Downloading '%s' from %s (hf adapter '%s').", objectName, a.endpoint, a.name)
	return resp.Body, nil
}

// ListObjects lists every file below prefix using the recursive tree API, following pagination.
func (a *hfAdapter) ListObjects(ctx context.Context, bucket, prefix string, fn func(objectName string) error) error {
	ref, err := parseObjectName(prefix)
	if err != nil {
		return err
	}
	// The tree API lists directories; a partial last segment is filtered client-side.
	dir := ref.path
	if dir != "" && !strings.HasSuffix(prefix, "/") {
		if i := strings.LastIndex(dir, "/"); i >= 0 {
			dir = dir[:i]
		} else {
			dir = ""
		}
	}

	next := a.treeURL(repoRef{repoType: ref.repoType, repoID: ref.repoID, path: dir}, true)
	for next != "" {
		entries, link, err := a.fetchTree(ctx, next, prefix)
		if err != nil {
			return err
		}
		for _, e := range entries {
			if e.Type != "file" {
				continue
			}
			objectName := ref.repoType + "/" + ref.repoID + "/" + e.Path
			if !strings.HasPrefix(objectName, prefix) {
				continue
			}
			if err := fn(objectName); err != nil {
				return err
			}
		}
		next = link
	}
	return nil
}

// Stat issues a HEAD on the file; if that is not found it checks whether objectName is a directory.
func (a *hfAdapter) Stat(ctx context.Context, bucket, objectName string) (storageAdapter.ObjectInfo, error) {
	ref, err := parseObjectName(objectName)
	if err != nil {
		return storageAdapter.ObjectInfo{}, err
	}

	resp, err := a.do(ctx, http.MethodHead, a.resolveURL(ref))
	if err != nil {
		return storageAdapter.ObjectInfo{}, err
	}
	resp.Body.Close()
	switch resp.StatusCode {
	case http.StatusOK:
		size := resp.ContentLength
		// LFS files report their real size here; Content-Length may describe a redirect body.
		if linked := resp.Header.Get("X-Linked-Size"); linked != "" {
			if n, err := strconv.ParseInt(linked, 10, 64); err == nil {
				size = n
			}
		}
		return storageAdapter.ObjectInfo{Name: objectName, Size: size}, nil
	case http.StatusNotFound:
	default:
		return storageAdapter.ObjectInfo{}, a.statusError(resp, objectName)
	}

	if _, _, err := a.fetchTree(ctx, a.treeURL(ref, false), objectName); err != nil {
		return storageAdapter.ObjectInfo{}, err
	}
	return storageAdapter.ObjectInfo{Name: objectName, IsDir: true}, nil
}

func (a *hfAdapter) fetchTree(ctx context.Context, treeURL, objectName string) ([]treeEntry, string, error) {
	resp, err := a.do(ctx, http.MethodGet, treeURL)
	if err != nil {
		return nil, "", err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, "", a.statusError(resp, objectName)
	}

	var entries []treeEntry
	if err := json.NewDecoder(resp.Body).Decode(&entries); err != nil {
		return nil, "", fmt.Errorf("failed to decode tree listing for '%s': %w", objectName, err)
	}
	next := ""
	if m := linkNextRe.FindStringSubmatch(resp.Header.Get("Link")); m != nil {
		next = m[1]
	}
	return entries, next, nil
}

func (a *hfAdapter) do(ctx context.Context, method, rawURL string) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, method, rawURL, nil)
	if err != nil {
		return nil, err
	}
	if a.cfg.Token != "" {
		req.Header.Set("Authorization", "Bearer "+a.cfg.Token)
	}
	resp, err := a.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("hf storage adapter '%s': %s %s: %w", a.name, method, rawURL, err)
	}
	return resp, nil
}

func (a *hfAdapter) statusError(resp *http.Response, objectName string) error {
	if resp.StatusCode == http.StatusNotFound {
		return exception.NewEvalErrorf("storage", "object '%s' not found on %s (hf adapter '%s')", objectName, a.endpoint, a.name, exception.ErrObjectNotFound)
	}
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
	return fmt.Errorf("hf storage adapter '%s': unexpected status %d for '%s': %s", a.name, resp.StatusCode, objectName, strings.TrimSpace(string(body)))
}

func (a *hfAdapter) resolveURL(ref repoRef) string {
	repo := ref.repoID
	if ref.repoType != "models" {
		repo = ref.repoType + "/" + ref.repoID
	}
	return fmt.Sprintf("%s/%s/resolve/%s/%s", a.endpoint, repo, url.PathEscape(a.revision), escapePath(ref.path))
}

func (a *hfAdapter) treeURL(ref repoRef, recursive bool) string {
	u := fmt.Sprintf("%s/api/%s/%s/tree/%s", a.endpoint, ref.repoType, ref.repoID, url.PathEscape(a.revision))
	if ref.path != "" {
		u += "/" + escapePath(ref.path)
	}
	if recursive {
		u += "?recursive=true"
	}
	return u
}

func escapePath(p string) string {
	segs := strings.Split(p, "/")
	for i, s := range segs {
		segs[i] = url.PathEscape(s)
	}
	return strings.Join(segs, "/")
}

// parseObjectName splits "datasets/<org>/<repo>/<path>" into its parts.
// A name without a known type prefix addresses a model repository.
func parseObjectName(objectName string) (repoRef, error) {
	parts := strings.Split(strings.Trim(objectName, "/"), "/")
	ref := repoRef{repoType: "models"}
	switch parts[0] {
	case "datasets", "spaces", "models":
		ref.repoType = parts[0]
		parts = parts[1:]
	}
	if len(parts) < 2 || parts[0] == "" || parts[1] == "" {
		return ref, exception.NewEvalErrorf("storage", "object name '%s' does not address a repository (<type>/<org>/<repo>/<path>)", objectName, exception.ErrInvalidConfiguration)
	}
	ref.repoID = parts[0] + "/" + parts[1]
	ref.path = strings.Join(parts[2:], "/")
	return ref, nil
}
