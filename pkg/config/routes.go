package config

// RouteConfig holds the post-verification redirect target for each role
type RouteConfig struct {
	PlatformOwner string `env:"STEPUP_ROUTE_PLATFORM_OWNER" env-default:"/platform"`
	OrgAdmin      string `env:"STEPUP_ROUTE_ORG_ADMIN" env-default:"/org"`
	Learner       string `env:"STEPUP_ROUTE_LEARNER" env-default:"/learn"`
}
