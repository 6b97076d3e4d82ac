package core

import glog "github.com/goliatone/go-logger/glog"

var (
	_ Registry       = (*PlatformRegistry)(nil)
	_ CredentialFlow = (*CredentialManager)(nil)

	_ Logger         = glog.Nop()
	_ LoggerProvider = glog.ProviderFromLogger(glog.Nop())
)
