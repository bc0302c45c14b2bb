package echo

import (
	"net/http"
	"strconv"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog/log"

	serrors "go.pilab.hu/iam/errors"
)

// BlacklistAddHandler revokes a token id for the given remaining lifetime.
// The ttl form value is in seconds and must cover the token's remaining
// validity; after the ttl elapses the entry is evicted automatically.
func (oa *OAuth2API) BlacklistAddHandler(c echo.Context) error {
	jti := c.Param("jti")
	ttlSec, err := strconv.ParseInt(c.FormValue("ttl"), 10, 64)
	if err != nil || ttlSec <= 0 {
		return c.JSON(http.StatusBadRequest, serrors.NewInvalidRequest("ttl must be a positive number of seconds"))
	}

	if err := oa.blacklist.Revoke(c.Request().Context(), jti, time.Duration(ttlSec)*time.Second); err != nil {
		log.Error().Err(err).Str("jti", jti).Msg("Failed to blacklist token")
		return c.JSON(http.StatusInternalServerError, serrors.NewServerError("blacklist store unavailable"))
	}
	return c.NoContent(http.StatusNoContent)
}

// BlacklistCheckHandler reports whether the token id is revoked.
func (oa *OAuth2API) BlacklistCheckHandler(c echo.Context) error {
	jti := c.Param("jti")
	revoked, err := oa.blacklist.IsRevoked(c.Request().Context(), jti)
	if err != nil {
		log.Error().Err(err).Str("jti", jti).Msg("Failed to check blacklist")
		return c.JSON(http.StatusInternalServerError, serrors.NewServerError("blacklist store unavailable"))
	}
	return c.JSON(http.StatusOK, map[string]any{"jti": jti, "revoked": revoked})
}

// BlacklistRemoveHandler lifts a revocation before its natural expiry.
func (oa *OAuth2API) BlacklistRemoveHandler(c echo.Context) error {
	jti := c.Param("jti")
	if err := oa.blacklist.Unrevoke(c.Request().Context(), jti); err != nil {
		log.Error().Err(err).Str("jti", jti).Msg("Failed to remove token from blacklist")
		return c.JSON(http.StatusInternalServerError, serrors.NewServerError("blacklist store unavailable"))
	}
	return c.NoContent(http.StatusNoContent)
}

// BlacklistStatsHandler returns the current blacklist size.
func (oa *OAuth2API) BlacklistStatsHandler(c echo.Context) error {
	size, err := oa.blacklist.Stats(c.Request().Context())
	if err != nil {
		log.Error().Err(err).Msg("Failed to collect blacklist stats")
		return c.JSON(http.StatusInternalServerError, serrors.NewServerError("blacklist store unavailable"))
	}
	return c.JSON(http.StatusOK, map[string]any{"size": size})
}
