// Package domain содержит бизнес-сущности и доменные ошибки сервиса заказов.
package domain

import "errors"

// Доменные ошибки сервиса заказов.
// Используются для передачи бизнес-ошибок между слоями приложения.
var (
	// ErrOrderNotFound возвращается, когда заказ не найден в базе данных.
	ErrOrderNotFound = errors.New("заказ не найден")

	// ErrEmptyOrderPieces возвращается при попытке создать заказ без позиций.
	ErrEmptyOrderPieces = errors.New("заказ должен содержать хотя бы одну позицию")

	// ErrInvalidClientID возвращается при некорректном идентификаторе клиента.
	ErrInvalidClientID = errors.New("некорректный идентификатор клиента")

	// ErrInvalidPieceType возвращается при неизвестном типе позиции.
	ErrInvalidPieceType = errors.New("неизвестный тип позиции")

	// ErrInvalidZipcode возвращается при некорректном почтовом индексе.
	ErrInvalidZipcode = errors.New("некорректный почтовый индекс")

	// ErrOrderNotApproved возвращается, когда сага создания отклонила заказ.
	ErrOrderNotApproved = errors.New("заказ не подтверждён")

	// ErrCancelNotAllowed возвращается, когда захват блокировки отмены не
	// удался: заказ не существует, принадлежит другому клиенту или его
	// статус не допускает отмену.
	ErrCancelNotAllowed = errors.New("отмена заказа невозможна в текущем статусе")
)
