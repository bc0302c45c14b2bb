package echo

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog/log"

	serrors "go.pilab.hu/iam/errors"
)

// JWKSHandler publishes the public verification keys. Private key material
// never appears in the document.
func (oa *OAuth2API) JWKSHandler(c echo.Context) error {
	jwks, err := oa.keyRing.JWKS(c.Request().Context())
	if err != nil {
		log.Error().Err(err).Msg("Failed to build JWKS document")
		return c.JSON(http.StatusInternalServerError, serrors.NewServerError("key store unavailable"))
	}
	return c.JSON(http.StatusOK, jwks)
}
