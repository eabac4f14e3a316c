package model

import (
	"sort"
	"strings"
	"time"

	"github.com/tigerroll/pvtruth/pkg/eval/support/util/exception"
)

const (
	// Folder30Minutely holds generation records bucketed to 30 minutes.
	Folder30Minutely = "30_minutely"
	// Folder5Minutely holds generation records bucketed to 5 minutes.
	Folder5Minutely = "5_minutely"
)

// folderResolutions is the fixed mapping from dataset folder name to bucket width.
var folderResolutions = map[string]time.Duration{
	Folder5Minutely:  5 * time.Minute,
	Folder30Minutely: 30 * time.Minute,
}

// Resolution is the bucket width of a generation folder.
type Resolution struct {
	Folder string
	Step   time.Duration
}

// ResolutionForFolder looks up the bucket width of a folder.
// Unknown names return an error wrapping exception.ErrUnknownResolution.
func ResolutionForFolder(folder string) (Resolution, error) {
	step, ok := folderResolutions[folder]
	if !ok {
		return Resolution{}, exception.NewEvalErrorf("model", "resolution folder %q is not one of [%s]",
			folder, strings.Join(KnownFolders(), ", "), exception.ErrUnknownResolution)
	}
	return Resolution{Folder: folder, Step: step}, nil
}

// KnownFolders returns the recognised folder names in sorted order.
func KnownFolders() []string {
	names := make([]string, 0, len(folderResolutions))
	for name := range folderResolutions {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Floor rounds t down to the start of its bucket, in UTC.
func (r Resolution) Floor(t time.Time) time.Time {
	return t.UTC().Truncate(r.Step)
}

// String returns e.g. "30_minutely (30m0s)".
func (r Resolution) String() string {
	return r.Folder + " (" + r.Step.String() + ")"
}
