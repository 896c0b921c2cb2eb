// Package credentials discovers gcloud service-account key files under the
// user's home directory when no explicit key file path is given.
package credentials
