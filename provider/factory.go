package provider

// Settings locates the identity provider. Values are read whenever a client
// is built, never at startup.
type Settings struct {
	URL        string
	PublicKey  string
	ServiceKey string
}

// SettingsFactory builds GoTrue clients from the current settings.
type SettingsFactory struct {
	Settings func() Settings
}

func NewSettingsFactory(settings func() Settings) *SettingsFactory {
	return &SettingsFactory{Settings: settings}
}

func (f *SettingsFactory) Admin() (IdentityProvider, error) {
	s := f.Settings()

	missing := []string{}
	if s.URL == "" {
		missing = append(missing, "AUTH_PROVIDER_URL")
	}
	if s.ServiceKey == "" {
		missing = append(missing, "AUTH_PROVIDER_SERVICE_KEY")
	}
	if len(missing) > 0 {
		return nil, &ConfigurationError{Missing: missing}
	}

	publicKey := s.PublicKey
	if publicKey == "" {
		publicKey = s.ServiceKey
	}

	return NewGoTrue(s.URL, publicKey, s.ServiceKey), nil
}

func (f *SettingsFactory) Public() (IdentityProvider, error) {
	s := f.Settings()

	missing := []string{}
	if s.URL == "" {
		missing = append(missing, "AUTH_PROVIDER_URL")
	}
	if s.PublicKey == "" {
		missing = append(missing, "AUTH_PROVIDER_PUBLIC_KEY")
	}
	if len(missing) > 0 {
		return nil, &ConfigurationError{Missing: missing}
	}

	return NewGoTrue(s.URL, s.PublicKey, ""), nil
}

// StaticFactory always hands out the same provider.
type StaticFactory struct {
	Provider IdentityProvider
}

func (f StaticFactory) Admin() (IdentityProvider, error) {
	return f.Provider, nil
}

func (f StaticFactory) Public() (IdentityProvider, error) {
	return f.Provider, nil
}
