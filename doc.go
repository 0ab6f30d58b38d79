// Package tokenguard is a standalone library for validating OAuth2/OIDC
// JSON Web Tokens against one or more configured issuers. It owns its
// own bounded JSON decoding, JWKS/well-known fetching with ETag-aware
// caching and retry, signature verification for the RS/PS/ES algorithm
// families, and an access-token validation cache — it is not an HTTP
// framework integration and ships no server.
//
// A minimal setup looks like:
//
//	cfg, err := config.LoadConfig()
//	if err != nil {
//		log.Fatal(err)
//	}
//	validator, err := tokenguard.BuildValidator(cfg)
//	if err != nil {
//		log.Fatal(err)
//	}
//	defer validator.Shutdown()
//
//	content, err := validator.CreateAccessToken(ctx, rawBearerToken)
//	if err != nil {
//		var rejection *pipeline.Error
//		if errors.As(err, &rejection) {
//			// rejection.EventType names exactly which check failed.
//		}
//		return err
//	}
//	fmt.Println(content.Subject, content.Scopes)
package tokenguard
