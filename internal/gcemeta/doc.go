// Package gcemeta probes the GCE metadata service to recognize Dataproc
// VMs, which ship with the GCS connector preinstalled.
package gcemeta
