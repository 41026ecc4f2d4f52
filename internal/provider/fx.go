package provider

import "go.uber.org/fx"

var Module = fx.Module("provider",
	fx.Provide(
		fx.Annotate(NewStripeClient, fx.As(new(Client))),
		fx.Annotate(NewStripeVerifier, fx.As(new(Verifier))),
	),
)
