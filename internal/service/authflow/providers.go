package authflow

import (
	"golang.org/x/oauth2"

	"github.com/mpetrenko/postqueue/internal/models"
)

// ClientCredentials is one platform's app registration
type ClientCredentials struct {
	ClientID     string
	ClientSecret string
}

// provider bundles everything platform specific about the authorization flow
type provider struct {
	oauth *oauth2.Config

	// usesPKCE: only Twitter binds codes with a verifier. The others reject
	// or ignore the challenge params, so they must be omitted entirely.
	usesPKCE bool

	// extra authorization URL params, e.g. reddit's duration=permanent
	authParams []oauth2.AuthCodeOption
}

// Endpoints per platform. Tests may override via Config.Endpoints.
var defaultEndpoints = map[models.Platform]oauth2.Endpoint{
	models.PlatformTwitter: {
		AuthURL:   "https://twitter.com/i/oauth2/authorize",
		TokenURL:  "https://api.twitter.com/2/oauth2/token",
		AuthStyle: oauth2.AuthStyleInHeader,
	},
	models.PlatformLinkedIn: {
		AuthURL:   "https://www.linkedin.com/oauth/v2/authorization",
		TokenURL:  "https://www.linkedin.com/oauth/v2/accessToken",
		AuthStyle: oauth2.AuthStyleInParams,
	},
	models.PlatformFacebook: {
		AuthURL:   "https://www.facebook.com/v19.0/dialog/oauth",
		TokenURL:  "https://graph.facebook.com/v19.0/oauth/access_token",
		AuthStyle: oauth2.AuthStyleInParams,
	},
	models.PlatformInstagram: {
		AuthURL:   "https://www.facebook.com/v19.0/dialog/oauth",
		TokenURL:  "https://graph.facebook.com/v19.0/oauth/access_token",
		AuthStyle: oauth2.AuthStyleInParams,
	},
	models.PlatformReddit: {
		AuthURL:   "https://www.reddit.com/api/v1/authorize",
		TokenURL:  "https://www.reddit.com/api/v1/access_token",
		AuthStyle: oauth2.AuthStyleInHeader,
	},
}

var defaultScopes = map[models.Platform][]string{
	models.PlatformTwitter:   {"tweet.read", "tweet.write", "users.read", "offline.access"},
	models.PlatformLinkedIn:  {"openid", "profile", "w_member_social"},
	models.PlatformFacebook:  {"pages_manage_posts", "pages_read_engagement"},
	models.PlatformInstagram: {"instagram_basic", "instagram_content_publish"},
	models.PlatformReddit:    {"identity", "submit"},
}

func newProviders(cfg Config) map[models.Platform]*provider {
	endpoint := func(p models.Platform) oauth2.Endpoint {
		if ep, ok := cfg.Endpoints[p]; ok {
			return ep
		}
		return defaultEndpoints[p]
	}

	providers := make(map[models.Platform]*provider, len(models.Platforms))
	for _, p := range models.Platforms {
		creds := cfg.Clients[p]
		providers[p] = &provider{
			oauth: &oauth2.Config{
				ClientID:     creds.ClientID,
				ClientSecret: creds.ClientSecret,
				Endpoint:     endpoint(p),
				Scopes:       defaultScopes[p],
				RedirectURL:  cfg.PublicBaseURL + "/auth/" + p.String() + "/callback",
			},
		}
	}

	providers[models.PlatformTwitter].usesPKCE = true
	providers[models.PlatformReddit].authParams = []oauth2.AuthCodeOption{
		// Without duration=permanent reddit never issues a refresh token
		oauth2.SetAuthURLParam("duration", "permanent"),
	}

	return providers
}
