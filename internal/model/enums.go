package model

type ProviderStatus string

const (
	ProviderStatusActive    ProviderStatus = "active"
	ProviderStatusSuspended ProviderStatus = "suspended"
)

type StateStatus string

const (
	StateStatusValid    StateStatus = "valid"
	StateStatusConsumed StateStatus = "consumed"
	StateStatusExpired  StateStatus = "expired"
)

// Intent says whether a flow logs a user in or links a provider to an existing user.
type Intent string

const (
	IntentLogin Intent = "login"
	IntentBind  Intent = "bind"
)

type BindingStatus string

const (
	BindingStatusActive   BindingStatus = "active"
	BindingStatusDisabled BindingStatus = "disabled"
)

const (
	ProviderGitHub   = "github"
	ProviderGitee    = "gitee"
	ProviderDingTalk = "dingtalk"
	ProviderFeishu   = "feishu"
	ProviderWeChat   = "wechat"
	ProviderQQ       = "qq"
)
