package app

import (
	"context"
	"fmt"

	firebase "firebase.google.com/go/v4"
	log "github.com/sirupsen/logrus"
	"google.golang.org/api/option"

	"github.com/vladislavdragonenkov/storefront/internal/domain"
	"github.com/vladislavdragonenkov/storefront/internal/payment"
	"github.com/vladislavdragonenkov/storefront/internal/payment/stripe"
	"github.com/vladislavdragonenkov/storefront/internal/transport/httpapi"
)

// initPaymentGateway возвращает nil, nil для disabled: эндпоинты оплаты тогда отвечают 503.
func initPaymentGateway(cfg Config, logger *log.Entry) (domain.PaymentGateway, error) {
	switch driver := cfg.effectivePaymentDriver(); driver {
	case PaymentDriverStripe:
		gateway, err := stripe.New(stripe.Config{
			SecretKey:     cfg.StripeSecretKey,
			WebhookSecret: cfg.StripeWebhookSecret,
			BaseURL:       cfg.StripeAPIBase,
			MaxRetries:    2,
			Logger:        logger.WithField("component", "stripe-gateway"),
		})
		if err != nil {
			return nil, fmt.Errorf("init stripe gateway: %w", err)
		}
		if cfg.StripeWebhookSecret == "" {
			logger.Warn("STOREFRONT_STRIPE_WEBHOOK_SECRET is empty, every webhook will be rejected")
		}
		logger.Info("payment driver: stripe")
		return gateway, nil

	case PaymentDriverMock:
		logger.Warn("payment driver: mock, payments are simulated in-process")
		return payment.NewMockGateway(cfg.MockWebhookSecret), nil

	case PaymentDriverDisabled:
		logger.Warn("payment processor is not configured, checkout endpoints answer 503")
		return nil, nil

	default:
		return nil, fmt.Errorf("unsupported payment driver %q", driver)
	}
}

// initTokenVerifier поднимает Firebase Auth для проверки ID token.
// При выключенной проверке возвращает nil: владелец корзины берётся из тела запроса.
func initTokenVerifier(ctx context.Context, cfg Config, logger *log.Entry) (httpapi.TokenVerifier, error) {
	if !cfg.VerifyIDTokens {
		return nil, nil
	}

	var opts []option.ClientOption
	if cfg.FirestoreCredentialsFile != "" {
		opts = append(opts, option.WithCredentialsFile(cfg.FirestoreCredentialsFile))
	}
	var fbConfig *firebase.Config
	if cfg.FirestoreProjectID != "" {
		fbConfig = &firebase.Config{ProjectID: cfg.FirestoreProjectID}
	}

	fbApp, err := firebase.NewApp(ctx, fbConfig, opts...)
	if err != nil {
		return nil, fmt.Errorf("init firebase app: %w", err)
	}
	client, err := fbApp.Auth(ctx)
	if err != nil {
		return nil, fmt.Errorf("init firebase auth: %w", err)
	}

	logger.WithField("required", cfg.RequireIDToken).Info("firebase ID token verification enabled")
	return client, nil
}
