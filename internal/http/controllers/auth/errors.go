package auth

import (
	"net/http"

	"go.uber.org/zap"

	"github.com/dropDatabas3/authgate/internal/domain/autherr"
	httperrors "github.com/dropDatabas3/authgate/internal/http/errors"
	"github.com/dropDatabas3/authgate/internal/observability/logger"
)

// writeServiceError loguea según la gravedad y escribe la respuesta.
// Los errores de dominio son esperables; solo lo interno va a Error.
func writeServiceError(w http.ResponseWriter, log *zap.Logger, err error) {
	k := autherr.KindOf(err)
	switch {
	case k.IsDomain():
		log.Debug("request rejected", logger.ErrorCode(k.Code()))
	case k == autherr.Internal:
		log.Error("request failed", logger.Err(err))
	default:
		log.Warn("upstream unavailable", logger.ErrorCode(k.Code()), logger.Err(err))
	}
	httperrors.WriteError(w, err)
}

// validate corre la validación de forma del DTO y escribe el 400 si falla.
func validate(w http.ResponseWriter, v interface{ Validate() error }) bool {
	if err := v.Validate(); err != nil {
		httperrors.WriteError(w, err)
		return false
	}
	return true
}
