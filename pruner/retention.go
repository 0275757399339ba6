package pruner

import (
	"context"
	"fmt"
	"path"
	"sort"
	"strings"
	"time"

	"github.com/distribution/registry-cleaner/internal/dcontext"
	"github.com/distribution/registry-cleaner/registry/storage"
	storagedriver "github.com/distribution/registry-cleaner/registry/storage/driver"
)

// Tag is a tag of the cleaned repository, aged by the last push.
type Tag struct {
	Name    string
	ModTime time.Time
}

// ParseExclude splits a comma separated list of glob patterns. Blank
// entries are dropped. The patterns are returned as written, once each has
// been checked to compile.
func ParseExclude(patterns string) ([]string, error) {
	var exclude []string
	for _, pattern := range strings.Split(patterns, ",") {
		pattern = strings.TrimSpace(pattern)
		if pattern == "" {
			continue
		}
		if _, err := compileExclude([]string{pattern}); err != nil {
			return nil, err
		}
		exclude = append(exclude, pattern)
	}
	return exclude, nil
}

// compileExclude translates each glob into path.Match syntax. Entries are
// taken as they are: commas and spaces belong to the pattern.
func compileExclude(patterns []string) ([]string, error) {
	compiled := make([]string, 0, len(patterns))
	for _, pattern := range patterns {
		translated := translateGlob(pattern)
		if _, err := path.Match(translated, ""); err != nil {
			return nil, fmt.Errorf("invalid exclude pattern %q: %w", pattern, err)
		}
		compiled = append(compiled, translated)
	}
	return compiled, nil
}

// translateGlob rewrites the character classes of a shell glob for
// path.Match: "[!...]" negates, while a "^" or "]" opening a class is a
// literal.
func translateGlob(pattern string) string {
	var b strings.Builder
	for i := 0; i < len(pattern); i++ {
		ch := pattern[i]
		b.WriteByte(ch)
		switch ch {
		case '\\':
			if i+1 < len(pattern) {
				i++
				b.WriteByte(pattern[i])
			}
		case '[':
			i = translateClass(&b, pattern, i+1) - 1
		}
	}
	return b.String()
}

// translateClass copies the class body starting at pattern[i], just after
// its "[", and returns the index following the class.
func translateClass(b *strings.Builder, pattern string, i int) int {
	leadingBracket := true
	switch {
	case strings.HasPrefix(pattern[i:], "!"):
		b.WriteByte('^')
		i++
	case strings.HasPrefix(pattern[i:], "^"):
		b.WriteString(`\^`)
		i++
		leadingBracket = false
	}
	if leadingBracket && strings.HasPrefix(pattern[i:], "]") {
		b.WriteString(`\]`)
		i++
	}
	for ; i < len(pattern); i++ {
		ch := pattern[i]
		b.WriteByte(ch)
		switch ch {
		case '\\':
			if i+1 < len(pattern) {
				i++
				b.WriteByte(pattern[i])
			}
		case ']':
			return i + 1
		}
	}
	return i
}

// excluded reports whether tag matches one of the compiled patterns.
func excluded(tag string, patterns []string) bool {
	for _, pattern := range patterns {
		if matched, _ := path.Match(pattern, tag); matched {
			return true
		}
	}
	return false
}

// ListTags returns the tags of repo eligible for deletion, in lexical
// order. Tags matching an exclude glob are left out.
func ListTags(ctx context.Context, driver storagedriver.StorageDriver, repo string, exclude []string) ([]Tag, error) {
	patterns, err := compileExclude(exclude)
	if err != nil {
		return nil, err
	}

	descriptors, err := storage.NewTagStore(driver).All(ctx, repo)
	if err != nil {
		return nil, err
	}

	tags := make([]Tag, 0, len(descriptors))
	for _, descriptor := range descriptors {
		if excluded(descriptor.Name, patterns) {
			dcontext.GetLogger(ctx).Debugf("Excluding tag %s:%s", repo, descriptor.Name)
			continue
		}
		tags = append(tags, Tag{Name: descriptor.Name, ModTime: descriptor.ModTime})
	}
	return tags, nil
}

// SelectExpired returns the tags outside the retention window: all but the
// keep most recently modified ones. Tags modified at the same time keep
// their relative order.
func SelectExpired(tags []Tag, keep int) []Tag {
	if keep < 0 {
		keep = 0
	}
	if len(tags) <= keep {
		return nil
	}

	sorted := make([]Tag, len(tags))
	copy(sorted, tags)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].ModTime.After(sorted[j].ModTime)
	})
	return sorted[keep:]
}
