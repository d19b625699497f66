package config

type SecurityConfig interface {
	GetEnableRateLimiting() bool
	GetActivityRateLimit() float64
	GetActivityBurst() int
	GetSecureCookies() bool
	GetBootstrapAdminEmail() string
	GetBootstrapAdminPassword() string
}

type Security struct {
	EnableRateLimiting bool
	ActivityRateLimit  float64 // activity messages per second per websocket
	ActivityBurst      int
	BootstrapAdmin     string
	BootstrapPassword  string // empty means generate one
}

var _ SecurityConfig = Security{}

func securityFromEnv() Security {
	return Security{
		EnableRateLimiting: GetEnvBool("ACTIVITY_RATE_LIMITING", true),
		ActivityRateLimit:  GetEnvFloat("ACTIVITY_RATE_LIMIT", 20),
		ActivityBurst:      GetEnvInt("ACTIVITY_BURST", 40),
		BootstrapAdmin:     GetEnv("BOOTSTRAP_ADMIN_EMAIL", "admin@localhost"),
		BootstrapPassword:  GetEnv("BOOTSTRAP_ADMIN_PASSWORD", ""),
	}
}

func (s Security) GetEnableRateLimiting() bool {
	return s.EnableRateLimiting
}

func (s Security) GetActivityRateLimit() float64 {
	return s.ActivityRateLimit
}

func (s Security) GetActivityBurst() int {
	return s.ActivityBurst
}

// GetSecureCookies marks cookies Secure everywhere except DEV
func (Security) GetSecureCookies() bool {
	return EnvVars{}.GetEnv() != "DEV"
}

func (s Security) GetBootstrapAdminEmail() string {
	return s.BootstrapAdmin
}

func (s Security) GetBootstrapAdminPassword() string {
	return s.BootstrapPassword
}
