package auth

import (
	"context"
	"errors"
	"time"

	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/dropDatabas3/authgate/internal/audit"
	"github.com/dropDatabas3/authgate/internal/cache"
	"github.com/dropDatabas3/authgate/internal/domain/autherr"
	"github.com/dropDatabas3/authgate/internal/domain/repository"
	jwtx "github.com/dropDatabas3/authgate/internal/jwt"
	"github.com/dropDatabas3/authgate/internal/metrics"
	"github.com/dropDatabas3/authgate/internal/observability/logger"
	"github.com/dropDatabas3/authgate/internal/observability/tracing"
	"github.com/dropDatabas3/authgate/internal/security/totp"
)

// Deps contiene las dependencias del servicio.
type Deps struct {
	Users  repository.UserRepository
	Tokens repository.RefreshTokenRepository
	Signer *jwtx.Signer

	// Cache guarda el último contador TOTP aceptado por usuario (anti-replay).
	// nil = cache en memoria del proceso.
	Cache cache.Client
	// Audit recibe un evento por cada resultado. nil = Nop.
	Audit audit.Publisher

	MFAIssuer string // nombre que muestra la app autenticadora
	MFAWindow int    // pasos de tolerancia (+/-); <= 0 usa 1

	Now func() time.Time
}

// Service orquesta credential store, signer, ledger y motor TOTP.
type Service struct {
	deps   Deps
	tracer trace.Tracer
}

func New(deps Deps) *Service {
	if deps.Cache == nil {
		deps.Cache = cache.NewMemory("auth")
	}
	if deps.Audit == nil {
		deps.Audit = audit.Nop{}
	}
	if deps.MFAIssuer == "" {
		deps.MFAIssuer = totp.DefaultIssuer
	}
	if deps.MFAWindow <= 0 {
		deps.MFAWindow = 1
	}
	if deps.Now == nil {
		deps.Now = time.Now
	}
	return &Service{deps: deps, tracer: tracing.Tracer("authgate/services/auth")}
}

// start abre el span de la operación y arma el logger con los campos comunes.
func (s *Service) start(ctx context.Context, op string) (context.Context, trace.Span, *zap.Logger) {
	ctx, span := s.tracer.Start(ctx, "auth."+op)
	log := logger.From(ctx).With(
		logger.Layer("service"),
		logger.Component("auth"),
		logger.Op(op),
	)
	return ctx, span, log
}

// finish registra el resultado: métrica, estado del span y evento de auditoría.
// Un fallo del publisher no cambia el resultado de la operación.
func (s *Service) finish(ctx context.Context, span trace.Span, log *zap.Logger, op string, ev audit.Event, err error) {
	defer span.End()

	result := "ok"
	if err != nil {
		result = autherr.KindOf(err).Code()
		span.SetStatus(codes.Error, result)
	}
	metrics.RecordAuth(op, result)

	if ev.Type == "" {
		return
	}
	if ev.At.IsZero() {
		ev.At = s.deps.Now().UTC()
	}
	if perr := s.deps.Audit.Publish(ctx, ev); perr != nil {
		log.Warn("audit publish failed", logger.Err(perr), logger.String("event", ev.Type))
	}
}

// failInternal envuelve una falla de infraestructura. El detalle queda en el log, no en el mensaje.
func failInternal(log *zap.Logger, msg string, err error) error {
	log.Error(msg, logger.Err(err))
	return autherr.Wrap(autherr.Internal, msg, err)
}

// issueTokens firma access y refresh en paralelo y persiste el registro del ledger
// antes de devolver el par: un refresh que no está en el ledger nunca sale del servicio.
func (s *Service) issueTokens(ctx context.Context, u *repository.User) (*Tokens, string, error) {
	var access, refresh, refreshJTI string
	var g errgroup.Group
	g.Go(func() error {
		var err error
		access, _, err = s.deps.Signer.SignAccess(u.ID, u.Username, u.Roles)
		return err
	})
	g.Go(func() error {
		var err error
		refresh, refreshJTI, err = s.deps.Signer.SignRefresh(u.ID)
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, "", autherr.Wrap(autherr.Internal, "sign tokens", err)
	}

	expiresAt := s.deps.Now().Add(s.deps.Signer.RefreshTTL())
	if err := s.deps.Tokens.Save(ctx, u.ID, refresh, refreshJTI, expiresAt); err != nil {
		return nil, "", autherr.Wrap(autherr.Internal, "persist refresh token", err)
	}

	return &Tokens{
		AccessToken:  access,
		RefreshToken: refresh,
		ExpiresIn:    int64(s.deps.Signer.AccessTTL() / time.Second),
	}, refreshJTI, nil
}

// loadUser traduce ErrNotFound al Kind pedido por el llamador.
func (s *Service) loadUser(ctx context.Context, id int64, notFound *autherr.Error) (*repository.User, error) {
	u, err := s.deps.Users.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, notFound
		}
		return nil, autherr.Wrap(autherr.Internal, "load user", err)
	}
	return u, nil
}
