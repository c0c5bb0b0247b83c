package core

import glog "github.com/goliatone/go-logger/glog"

var (
	_ ModuleRegistry      = (*ModuleCatalog)(nil)
	_ Module              = ModuleSpec{}
	_ DefaultCodeModule   = ModuleSpec{}
	_ CredentialValidator = ModuleSpec{}
	_ ConfigProvider      = (*CfgxConfigProvider)(nil)
	_ OptionsResolver     = GoOptionsResolver{}
	_ RawConfigLoader     = MapConfigLoader(nil)
	_ RawConfigLoader     = YAMLConfigLoader{}
	_ MetricsRecorder     = NopMetricsRecorder{}
	_ NotificationHandler = (*Manager)(nil).ReceiveNotification

	_ Logger         = glog.Nop()
	_ LoggerProvider = glog.ProviderFromLogger(glog.Nop())
)
