package oauth

import "golang.org/x/oauth2"

// AuthorizationRequest holds the values for one login attempt's redirect
type AuthorizationRequest struct {
	ClientID      string
	RedirectURI   string
	Scope         string
	State         string
	CodeChallenge string
}

// BuildAuthorizeURL composes the provider login URL. It makes no network call
// and does not validate its inputs; callers check required fields first.
func BuildAuthorizeURL(p Profile, req AuthorizationRequest) string {
	conf := &oauth2.Config{
		ClientID:    req.ClientID,
		RedirectURL: req.RedirectURI,
		Endpoint:    p.endpoint(""),
	}

	opts := make([]oauth2.AuthCodeOption, 0, len(p.AuthParams)+3)
	for k, v := range p.AuthParams {
		opts = append(opts, oauth2.SetAuthURLParam(k, v))
	}
	if req.Scope != "" {
		opts = append(opts, oauth2.SetAuthURLParam("scope", req.Scope))
	}
	opts = append(opts,
		oauth2.SetAuthURLParam("code_challenge", req.CodeChallenge),
		oauth2.SetAuthURLParam("code_challenge_method", ChallengeMethod),
	)

	return conf.AuthCodeURL(req.State, opts...)
}
