package app

import "github.com/ravnmail/ravncore/internal/model"

// LicenseActivate binds a license key to this install.
func (a *App) LicenseActivate(licenseKey string) (*model.License, error) {
	return a.Licenses.Activate(a.ctx, licenseKey)
}

// LicenseTrial starts a trial for the given email.
func (a *App) LicenseTrial(email string) (*model.License, error) {
	return a.Licenses.StartTrial(a.ctx, email)
}

// LicenseStatus returns the cached license without a server round-trip.
func (a *App) LicenseStatus() (*model.License, error) {
	return a.Licenses.Status()
}

// LicenseValidate re-checks the given key against the activation server.
func (a *App) LicenseValidate(licenseKey string) (*model.License, error) {
	return a.Licenses.Validate(a.ctx, licenseKey)
}

// LicenseClear resets the install to unlicensed.
func (a *App) LicenseClear() error {
	return a.Licenses.Clear()
}

// LicenseDetails is an alias of LicenseStatus kept for the UI surface;
// the cached record already carries every displayable field.
func (a *App) LicenseDetails() (*model.License, error) {
	return a.Licenses.Status()
}
