//nolint:varnamelen
package echo

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog/log"

	serrors "go.pilab.hu/iam/errors"
	"go.pilab.hu/iam/services"
)

// OAuth2API struct to hold dependencies.
type OAuth2API struct {
	oauth         *services.OAuthService
	machineTokens *services.MachineTokenService
	introspection *services.IntrospectionService
	blacklist     *services.BlacklistService
	keyRing       *services.KeyRing
}

// NewOAuth2API initializes the OAuth2 API.
func NewOAuth2API(
	oauth *services.OAuthService,
	machineTokens *services.MachineTokenService,
	introspection *services.IntrospectionService,
	blacklist *services.BlacklistService,
	keyRing *services.KeyRing,
) *OAuth2API {
	return &OAuth2API{
		oauth:         oauth,
		machineTokens: machineTokens,
		introspection: introspection,
		blacklist:     blacklist,
		keyRing:       keyRing,
	}
}

// RegisterRoutes registers the OAuth2 routes.
func (oa *OAuth2API) RegisterRoutes(e *echo.Echo) {
	e.POST("/oauth2/token", oa.TokenHandler)
	e.POST("/oauth2/refresh", oa.RefreshHandler)
	e.POST("/oauth2/logout", oa.LogoutHandler)
	e.POST("/oauth2/introspect", oa.IntrospectHandler)

	e.POST("/oauth2/blacklist/:jti", oa.BlacklistAddHandler)
	e.GET("/oauth2/blacklist/:jti", oa.BlacklistCheckHandler)
	e.DELETE("/oauth2/blacklist/:jti", oa.BlacklistRemoveHandler)
	e.GET("/oauth2/blacklist/stats", oa.BlacklistStatsHandler)

	e.GET("/.well-known/jwks.json", oa.JWKSHandler)
}

// TokenHandler handles OAuth2 token requests. The grant_type form value
// selects the issuance path:
//   - password: first-party user login
//   - client_credentials: machine client (app id / app secret)
//   - refresh_token: rotation, same as POST /oauth2/refresh
func (oa *OAuth2API) TokenHandler(c echo.Context) error {
	ctx := c.Request().Context()
	grantType := c.FormValue("grant_type")

	switch grantType {
	case "password":
		resp, err := oa.oauth.PasswordGrant(ctx,
			c.FormValue("client_id"),
			c.FormValue("username"),
			c.FormValue("password"),
		)
		if err != nil {
			return oauthErrorResponse(c, err)
		}
		return c.JSON(http.StatusOK, resp)

	case "client_credentials":
		appID := c.FormValue("app_id")
		appSecret := c.FormValue("app_secret")
		// Standard OAuth2 clients send client_id/client_secret instead.
		if appID == "" {
			appID = c.FormValue("client_id")
			appSecret = c.FormValue("client_secret")
		}
		resp, err := oa.machineTokens.Issue(ctx, appID, appSecret)
		if err != nil {
			return oauthErrorResponse(c, err)
		}
		return c.JSON(http.StatusOK, resp)

	case "refresh_token":
		resp, err := oa.oauth.Refresh(ctx, c.FormValue("refresh_token"), c.FormValue("client_id"))
		if err != nil {
			return oauthErrorResponse(c, err)
		}
		return c.JSON(http.StatusOK, resp)

	default:
		return c.JSON(http.StatusBadRequest, serrors.NewUnsupportedGrantType())
	}
}

// RefreshHandler rotates a refresh token into a new access+refresh pair.
func (oa *OAuth2API) RefreshHandler(c echo.Context) error {
	resp, err := oa.oauth.Refresh(c.Request().Context(), c.FormValue("refresh_token"), c.FormValue("client_id"))
	if err != nil {
		return oauthErrorResponse(c, err)
	}
	return c.JSON(http.StatusOK, resp)
}

// LogoutHandler revokes the whole token family owning the presented access
// token. The token comes from the Authorization header or the token form
// value.
func (oa *OAuth2API) LogoutHandler(c echo.Context) error {
	token := bearerToken(c)
	if token == "" {
		token = c.FormValue("token")
	}
	if err := oa.oauth.Logout(c.Request().Context(), token, c.FormValue("client_id")); err != nil {
		return oauthErrorResponse(c, err)
	}
	return c.NoContent(http.StatusNoContent)
}

// IntrospectHandler resolves a token to its claims per RFC 7662. Unknown
// tokens answer 200 {"active": false}; only store failures are 5xx.
func (oa *OAuth2API) IntrospectHandler(c echo.Context) error {
	token := c.FormValue("token")
	if token == "" {
		return c.JSON(http.StatusBadRequest, serrors.NewInvalidRequest("token is required"))
	}

	claims, err := oa.introspection.Introspect(c.Request().Context(), token)
	if err != nil {
		log.Error().Err(err).Msg("Introspection failed")
		return c.JSON(http.StatusInternalServerError, serrors.NewServerError("introspection store unavailable"))
	}
	return c.JSON(http.StatusOK, claims)
}

// oauthErrorResponse maps a service error to its HTTP status. OAuth2 errors
// keep their wire form; anything else is a masked server_error.
func oauthErrorResponse(c echo.Context, err error) error {
	var oauthErr *serrors.OAuth2Error
	if !errors.As(err, &oauthErr) {
		log.Error().Err(err).Msg("Unexpected error from token service")
		return c.JSON(http.StatusInternalServerError, serrors.NewServerError("internal server error"))
	}

	status := http.StatusBadRequest
	switch oauthErr.Code {
	case serrors.InvalidClient, serrors.UnauthorizedClient:
		status = http.StatusUnauthorized
	case serrors.ServerError, serrors.TemporarilyUnavailable:
		status = http.StatusInternalServerError
	}
	return c.JSON(status, oauthErr)
}

func bearerToken(c echo.Context) string {
	const prefix = "Bearer "
	auth := c.Request().Header.Get(echo.HeaderAuthorization)
	if len(auth) > len(prefix) && auth[:len(prefix)] == prefix {
		return auth[len(prefix):]
	}
	return ""
}
