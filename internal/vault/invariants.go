package vault

import (
	"fmt"
	"os"

	"imgcrypt/internal/imagecipher"
)

// Item invariants:
//
//     container file MUST exist at encrypted_images/<id>.bin
//     container size MUST equal 16 + plain_size
//     key file MUST exist at keys/<id>_key.txt
//
// The key itself cannot be checked against the container: there is no tag.

// ValidateItem verifies that an indexed item is consistent with the filesystem.
// It NEVER attempts repair and NEVER mutates disk.
func ValidateItem(item Item, layout Layout) error {
	containerPath := layout.ContainerPath(item.ID)
	info, err := os.Stat(containerPath)
	if err != nil {
		if os.IsNotExist(err) {
			return fmt.Errorf("item %s: encrypted image missing", item.ID)
		}
		return fmt.Errorf("item %s: cannot verify encrypted image: %w", item.ID, err)
	}

	want := int64(imagecipher.IVSize) + item.PlainSize
	if info.Size() != want {
		return fmt.Errorf("item %s: encrypted image is %d bytes, expected %d (truncated or corrupted)", item.ID, info.Size(), want)
	}

	if _, err := os.Stat(layout.KeyPath(item.ID)); err != nil {
		if os.IsNotExist(err) {
			return fmt.Errorf("item %s: key file missing", item.ID)
		}
		return fmt.Errorf("item %s: cannot verify key file: %w", item.ID, err)
	}

	return nil
}
