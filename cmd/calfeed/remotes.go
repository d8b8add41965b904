package main

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/BurntSushi/toml"
)

// Remote is a named calfeed server the CLI can talk to.
type Remote struct {
	URL   string `toml:"url"`
	Token string `toml:"token,omitempty"`
	// Owners is the default calendar filter for watch.
	Owners []int64 `toml:"owners,omitempty"`
}

// remoteBook is the on-disk set of remotes, stored as TOML under the
// user's state directory.
type remoteBook struct {
	Active  string            `toml:"active"`
	Remotes map[string]Remote `toml:"remotes"`

	path string
}

var errNoActiveRemote = errors.New("no active remote; specify a name or run 'calfeed remote use <name>'")

// remotesPath honours XDG_STATE_HOME, falling back to ~/.local/state.
func remotesPath() (string, error) {
	base := os.Getenv("XDG_STATE_HOME")
	if base == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", err
		}
		base = filepath.Join(home, ".local", "state")
	}
	return filepath.Join(base, "calfeed", "remotes.toml"), nil
}

func openRemoteBook() (*remoteBook, error) {
	path, err := remotesPath()
	if err != nil {
		return nil, err
	}
	b := &remoteBook{path: path}
	if _, err := toml.DecodeFile(path, b); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("reading %s: %w", path, err)
	}
	if b.Remotes == nil {
		b.Remotes = map[string]Remote{}
	}
	return b, nil
}

// save writes the book through a temp file so a crash never leaves a
// truncated remotes.toml behind.
func (b *remoteBook) save() error {
	if err := os.MkdirAll(filepath.Dir(b.path), 0o700); err != nil {
		return err
	}
	tmp, err := os.CreateTemp(filepath.Dir(b.path), ".remotes-*.toml")
	if err != nil {
		return err
	}
	defer os.Remove(tmp.Name())
	if err := toml.NewEncoder(tmp).Encode(b); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), b.path)
}

// add inserts or replaces a remote. The URL must be an absolute http(s) URL.
func (b *remoteBook) add(name, rawURL, token string, owners []int64) error {
	if name == "" || strings.ContainsAny(name, " \t\n/") {
		return fmt.Errorf("invalid remote name %q", name)
	}
	u, err := url.Parse(rawURL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return fmt.Errorf("invalid remote URL %q: want http(s)://host[:port]", rawURL)
	}
	b.Remotes[name] = Remote{
		URL:    strings.TrimRight(u.String(), "/"),
		Token:  token,
		Owners: owners,
	}
	return nil
}

func (b *remoteBook) remove(name string) error {
	if _, ok := b.Remotes[name]; !ok {
		return fmt.Errorf("remote %q not found", name)
	}
	delete(b.Remotes, name)
	if b.Active == name {
		b.Active = ""
	}
	return nil
}

func (b *remoteBook) use(name string) error {
	if _, ok := b.Remotes[name]; !ok {
		return fmt.Errorf("remote %q not found", name)
	}
	b.Active = name
	return nil
}

// lookup resolves name, or the active remote when name is empty.
func (b *remoteBook) lookup(name string) (string, Remote, error) {
	if name == "" {
		name = b.Active
	}
	if name == "" {
		return "", Remote{}, errNoActiveRemote
	}
	r, ok := b.Remotes[name]
	if !ok {
		return "", Remote{}, fmt.Errorf("remote %q not found", name)
	}
	return name, r, nil
}

// maskToken keeps the first keep characters and replaces the rest with fill,
// once when short is set, otherwise per character.
func maskToken(tok string, keep int, fill string, short bool) string {
	if len(tok) <= keep {
		return tok
	}
	if short {
		return tok[:keep] + fill
	}
	return tok[:keep] + strings.Repeat(fill, len(tok)-keep)
}

// activeRemote is read once per process; a missing or unreadable book means
// no remote.
var activeRemote = sync.OnceValue(func() Remote {
	b, err := openRemoteBook()
	if err != nil {
		return Remote{}
	}
	_, r, err := b.lookup("")
	if err != nil {
		return Remote{}
	}
	return r
})
