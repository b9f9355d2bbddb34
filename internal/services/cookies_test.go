package services

import (
	"path/filepath"
	"testing"

	tu "github.com/desertthunder/ytmirror/internal/testing"
)

func TestResolveAuth(t *testing.T) {
	dir := t.TempDir()
	explicit := tu.MustTouch(t, dir, "explicit.txt")

	t.Run("explicit file", func(t *testing.T) {
		got := ResolveAuth(explicit, "firefox")
		if got.CookiesFile != explicit || got.CookiesFromBrowser != "" {
			t.Errorf("unexpected auth %+v", got)
		}
		if got.Source() != "file:"+explicit {
			t.Errorf("source = %s", got.Source())
		}
	})

	t.Run("missing explicit file falls back to browser", func(t *testing.T) {
		wd := tu.MustGetwd(t)
		tu.MustChdir(t, t.TempDir())
		defer tu.MustChdir(t, wd)

		got := ResolveAuth(filepath.Join(dir, "nope.txt"), "chrome")
		if got.CookiesFile != "" || got.CookiesFromBrowser != "chrome" {
			t.Errorf("unexpected auth %+v", got)
		}
		if got.Source() != "browser:chrome" {
			t.Errorf("source = %s", got.Source())
		}
	})

	t.Run("default cookies.txt in working directory", func(t *testing.T) {
		wd := tu.MustGetwd(t)
		tmp := t.TempDir()
		tu.MustTouch(t, tmp, DefaultCookiesFile)
		tu.MustChdir(t, tmp)
		defer tu.MustChdir(t, wd)

		got := ResolveAuth("", "chrome")
		if got.CookiesFile != DefaultCookiesFile {
			t.Errorf("expected default cookies file, got %+v", got)
		}
	})

	t.Run("nothing configured", func(t *testing.T) {
		wd := tu.MustGetwd(t)
		tu.MustChdir(t, t.TempDir())
		defer tu.MustChdir(t, wd)

		got := ResolveAuth("", "")
		if got != (Auth{}) || got.Source() != "none" {
			t.Errorf("expected empty auth, got %+v", got)
		}
	})
}
