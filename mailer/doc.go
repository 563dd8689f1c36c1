// Package mailer renders and delivers the account emails: password reset,
// account created, lockout, change email confirmation, MFA security code
// and generic account notices.
//
// Each template has a text and an HTML variant under templates/. Messages are
// sent as multipart/alternative through a Transport: SMTPTransport in
// production, LogTransport for development and tests.
package mailer
