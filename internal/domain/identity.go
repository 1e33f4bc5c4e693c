package domain

import (
	"fmt"
	"strings"
)

// OwnerMetadataKey — ключ метаданных checkout-сессии, через который webhook
// восстанавливает владельца корзины. Единственная связь между запросом клиента
// и асинхронным уведомлением процессора.
const OwnerMetadataKey = "userId"

// DeviceCartKey — ключ корзины анонимной сессии в локальном хранилище устройства.
const DeviceCartKey = "device"

// OwnerID — стабильный идентификатор аккаунта, он же токен корреляции.
type OwnerID string

// Metadata упаковывает владельца в метаданные сессии процессора.
func (o OwnerID) Metadata() map[string]string {
	return map[string]string{OwnerMetadataKey: string(o)}
}

// OwnerFromMetadata извлекает владельца из метаданных завершённой сессии.
func OwnerFromMetadata(md map[string]string) (OwnerID, error) {
	owner := strings.TrimSpace(md[OwnerMetadataKey])
	if owner == "" {
		return "", fmt.Errorf("%w: session metadata has no %s", ErrValidation, OwnerMetadataKey)
	}
	return OwnerID(owner), nil
}

// Identity — аутентифицированный пользователь или анонимная сессия устройства.
type Identity struct {
	OwnerID     OwnerID
	Email       string
	DisplayName string
}

// Anonymous возвращает identity без владельца.
func Anonymous() Identity {
	return Identity{}
}

// Authenticated сообщает, что у identity есть ownerId.
func (i Identity) Authenticated() bool {
	return strings.TrimSpace(string(i.OwnerID)) != ""
}

// CartKey — ключ документа корзины. Разные identity никогда не делят ключ,
// поэтому смена пользователя не смешивает корзины.
func (i Identity) CartKey() string {
	if i.Authenticated() {
		return string(i.OwnerID)
	}
	return DeviceCartKey
}
