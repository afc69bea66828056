// Package utsdk bootstraps an UploadThing client from the environment. It
// selects between the real HTTP API and the in-memory mock according to
// UPLOADTHING_RUNTIME_MODE:
//
//	auto  HTTP when UPLOADTHING_TOKEN is set, mock otherwise (default)
//	http  HTTP; UPLOADTHING_TOKEN is required
//	mock  in-memory store, optionally seeded from UPLOADTHING_MOCK_SEED
//
// The mock keeps the full client validation path, so code written against
// it behaves the same once a token is configured.
package utsdk
