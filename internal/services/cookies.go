package services

import "os"

// DefaultCookiesFile is picked up from the working directory when no cookies file is given.
const DefaultCookiesFile = "cookies.txt"

// ResolveAuth picks the cookie source for the backend.
//
// An existing cookiesFile wins, falling back to an existing ./cookies.txt; browser cookies are
// only used when explicitly requested and no file is available. An empty [Auth] means
// age-restricted videos will be skipped.
func ResolveAuth(cookiesFile, browser string) Auth {
	for _, candidate := range []string{cookiesFile, DefaultCookiesFile} {
		if candidate == "" {
			continue
		}
		if info, err := os.Stat(candidate); err == nil && !info.IsDir() {
			return Auth{CookiesFile: candidate}
		}
	}

	if browser != "" {
		return Auth{CookiesFromBrowser: browser}
	}
	return Auth{}
}
