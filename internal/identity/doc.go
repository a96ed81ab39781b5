// Package identity owns the node's device identity and key material.
//
// On first use the Manager derives a device id from stable platform
// attributes, generates an RSA-2048 keypair and persists both. Later runs
// read them back; the id never changes once stored.
//
// The private key is serialised as PKCS#8 DER and sealed with age using a
// scrypt passphrase recipient before it reaches the KeyStore. It never
// leaves the Manager. A stored key that cannot be unsealed or parsed is
// discarded and a new keypair generated.
//
// For each connection attempt the Manager produces a SignedAssertion: an
// RSA PKCS#1 v1.5 SHA-256 signature over "deviceId:nonce:signedAt", with
// the public key, signature and nonce encoded as standard base64.
package identity
