package qrcode

// Issuer renders a unit's QR image and persists it in a FileStore.
type Issuer struct {
	files *FileStore
}

// NewIssuer creates an Issuer writing to files.
func NewIssuer(files *FileStore) *Issuer {
	return &Issuer{files: files}
}

// Issue generates the image for code and stores it under the unit's file
// name, returning the stored path.
func (i *Issuer) Issue(unitID int64, code string) (string, error) {
	png, err := Generate(code)
	if err != nil {
		return "", err
	}
	return i.files.Save(FileName(unitID, code), png)
}

// Exists reports whether a previously issued image is still on disk.
func (i *Issuer) Exists(path string) bool {
	return i.files.Exists(path)
}

// Discard removes an issued image.
func (i *Issuer) Discard(path string) error {
	return i.files.Remove(path)
}

// Read returns the bytes of an issued image.
func (i *Issuer) Read(path string) ([]byte, error) {
	return i.files.Read(path)
}
