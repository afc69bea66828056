// Package uploadthing is a client for the UploadThing file hosting API.
//
// A Client uploads files through presigned ingest URLs and manages stored
// files (delete, rename, list, ACL updates, usage info) over the REST API.
// Construct one from a token with New, or from UPLOADTHING_TOKEN and
// friends with NewFromEnv:
//
//	client, err := uploadthing.NewFromEnv()
//	if err != nil {
//		return err
//	}
//	res, err := client.UploadFile(ctx, uploadthing.File{Name: "a.txt", Reader: r}, nil)
//
// Every operation validates its arguments before any network call and
// returns errors wrapping ErrInvalidArgument for caller mistakes. Non-2xx
// responses surface as *APIError.
//
// NewWithBackend swaps the HTTP transport for another Backend; the mock
// subpackage provides an in-memory one for tests and local development.
package uploadthing
