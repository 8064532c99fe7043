package upstream

import (
	"context"
	"encoding/json"
	"net/http"
	"time"
)

const keybaseLookupURL = "https://keybase.io/_/api/1.0/user/lookup.json"

type keybaseLookupResponse struct {
	Them []struct {
		Basics struct {
			Username string `json:"username"`
		} `json:"basics"`
		Pictures struct {
			Primary struct {
				URL string `json:"url"`
			} `json:"primary"`
		} `json:"pictures"`
	} `json:"them"`
}

// GetKeybaseInfo resolves a validator's Keybase profile from its
// 16-hex-char identity. Any network failure, non-2xx response, or
// absent entry yields ok=false; this lookup is never allowed to fail
// the caller's larger refresh task.
func GetKeybaseInfo(ctx context.Context, identityHex string) (username, pictureURL string, ok bool) {
	if identityHex == "" {
		return "", "", false
	}

	url := keybaseLookupURL + "?key_suffix=" + identityHex + "&fields=basics,pictures"
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return "", "", false
	}

	client := &http.Client{Timeout: 10 * time.Second}
	resp, err := client.Do(req)
	if err != nil {
		return "", "", false
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", "", false
	}

	var out keybaseLookupResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", "", false
	}
	if len(out.Them) == 0 {
		return "", "", false
	}

	them := out.Them[0]
	if them.Basics.Username == "" {
		return "", "", false
	}
	return them.Basics.Username, them.Pictures.Primary.URL, true
}
