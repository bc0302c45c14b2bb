package mongodb

const (
	AuthorizationsCollection = "oauth_authorizations"  // Issued token families
	ClientsCollection        = "oauth_clients"         // Registered OAuth clients
	SigningKeysCollection    = "oauth_signing_keys"    // Key ring rows
	CredentialsCollection    = "client_credentials"    // Machine-client identities
	CredentialRelsCollection = "credential_resources"  // Credential -> resource relations
	ResourcesCollection      = "resources"             // Protected resource descriptors
	UsersCollection          = "users"                 // User directory
)
