// Package identity implements the account identity lifecycle: registration,
// login, email verification, password reset and account withdrawal, plus the
// gateway that turns bearer tokens into an authenticated principal.
//
// Account lifecycle:
//   - Accounts carry an AccountStatus persisted via Bun. New accounts start
//     PENDING, email verification moves them to ACTIVE and withdrawal moves
//     them to PENDING_DELETION with a deletion deadline. DELETED is terminal.
//   - AccountStateMachine owns the transition graph and the timestamps that
//     go with each status. Status writes are guarded by the status the account
//     was read with, so two concurrent withdrawals cannot both succeed.
//
// Tokens:
//   - Session tokens are stateless HS256 JWTs issued by TokenService. Their
//     validity is signature plus expiry only, the Gateway re-reads the account
//     on every request so a withdrawn account stops authenticating.
//   - Verification tokens (email verification, password reset) are random,
//     single use and time boxed. Only their SHA-256 digest is stored and
//     redemption is a compare-and-set on used_at.
//
// Notifications and activity:
//   - Notifier and ActivitySink calls run after the unit of work commits.
//     Failures are logged and never undo a state change.
package identity
