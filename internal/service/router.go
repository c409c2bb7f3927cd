package service

import (
	"context"
	"fmt"
	"strings"

	"github.com/pkg/errors"

	"orderbot/internal/classifier"
	"orderbot/internal/domain"
)

// Replies
const (
	replyNeedText         = "📩 ابعثلي اسم المنتج بالكتابة من فضلك 😊"
	replyNeedNumber       = "➡️ Envoie un chiffre فقط (1,2,3)"
	replyProductGone      = "❌ Produit introuvable. قول اسم المنتج من جديد."
	replyNoStock          = "❌ Stock insuffisant"
	replyConfirmed        = "✅ Commande confirmée ! Merci ❤️"
	replyEmptyCart        = "❌ Panier vide."
	replyCancelled        = "✅ Commande annulée."
	replyAskYesNo         = "✅ Confirmer ? Répond: oui / non"
	replyGreeting         = "👋 Salam ! قول اسم المنتج 😊"
	replyWhichProduct     = "❓ أي منتج تقصد؟ (قول الاسم واضح)"
	replyWhichProductCost = "❓ أي منتج تقصد باش نعطيك السعر؟"
	replyFallback         = "❓ لم أفهم، قول اسم المنتج (مثال: airpods)"
	replyChannelNotLinked = "⚠️ Cette page n'est pas encore liée à une boutique."
	replyTryAgain         = "❌ خطأ، حاول مرة أخرى."
)

func replyItemAdded(it domain.OrderItem) string {
	return fmt.Sprintf("✅ %d x %s = %d DZD\nConfirmer ? (oui / non)", it.Quantity, it.ProductName, it.LineTotal)
}

func replyAskQuantity(name string) string { return fmt.Sprintf("🛒 %s — Quelle quantité ?", name) }

func replyPrice(p domain.Product) string { return fmt.Sprintf("💰 %s = %d DZD", p.Name, p.Price) }

func replyStockFor(name string) string { return fmt.Sprintf("❌ Stock insuffisant pour %s.", name) }

func replyMenu(name string) string {
	return fmt.Sprintf("🤔 %s ?\n• \"prix %s\" pour le prix\n• \"nheb %s\" pour commander", name, name, name)
}

// Conversation кто пишет и через какой канал
type Conversation struct {
	Channel domain.Channel
	PSID    string
}

// Router выбирает действие по тексту и текущему заказу и возвращает ответ
type Router struct {
	catalog    *Catalog
	customers  *CustomerService
	orders     *OrderService
	classifier classifier.Classifier
}

// NewRouter cls may be nil when no classifier is configured.
func NewRouter(catalog *Catalog, customers *CustomerService, orders *OrderService, cls classifier.Classifier) *Router {
	return &Router{catalog: catalog, customers: customers, orders: orders, classifier: cls}
}

// Handle processes one message. Store failures come back as errors; business
// outcomes (no stock, missing product) are ordinary replies.
func (r *Router) Handle(ctx context.Context, conv Conversation, text string) (string, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return replyNeedText, nil
	}
	shopID := conv.Channel.ShopID

	if err := r.customers.Touch(ctx, shopID, conv.PSID); err != nil {
		return "", errors.Wrap(err, "touch customer")
	}

	order, err := r.orders.FindActive(ctx, shopID, conv.PSID)
	if err != nil {
		return "", err
	}

	if order != nil && IsCancel(text) {
		if err := r.orders.Cancel(ctx, order); err != nil {
			return "", err
		}
		return replyCancelled, nil
	}

	if order != nil {
		switch order.Status {
		case domain.OrderStatusAwaitingQuantity:
			return r.handleQuantity(ctx, order, text)
		case domain.OrderStatusAwaitingConfirmation:
			return r.handleConfirmation(ctx, order, text)
		}
	}

	// draft orders fall through: the customer has to name a product again
	if IsGreeting(text) {
		return replyGreeting, nil
	}
	return r.handleFree(ctx, conv, text)
}

func (r *Router) handleQuantity(ctx context.Context, order *domain.Order, text string) (string, error) {
	qty, ok := ParseQuantity(text)
	if !ok {
		return replyNeedNumber, nil
	}
	return r.addItem(ctx, order, qty)
}

func (r *Router) addItem(ctx context.Context, order *domain.Order, qty int64) (string, error) {
	item, err := r.orders.SupplyQuantity(ctx, order, qty)
	var stockErr *StockError
	switch {
	case err == nil:
		return replyItemAdded(*item), nil
	case errors.Is(err, ErrProductUnavailable):
		return replyProductGone, nil
	case errors.As(err, &stockErr):
		return replyNoStock, nil
	default:
		return "", err
	}
}

func (r *Router) handleConfirmation(ctx context.Context, order *domain.Order, text string) (string, error) {
	switch {
	case IsYes(text):
		_, err := r.orders.Confirm(ctx, order)
		var stockErr *StockError
		switch {
		case err == nil:
			return replyConfirmed, nil
		case errors.Is(err, ErrEmptyOrder):
			return replyEmptyCart, nil
		case errors.Is(err, ErrProductUnavailable):
			return replyProductGone, nil
		case errors.As(err, &stockErr):
			return replyStockFor(stockErr.ProductName), nil
		default:
			return "", err
		}
	case IsNo(text):
		if err := r.orders.Cancel(ctx, order); err != nil {
			return "", err
		}
		return replyCancelled, nil
	default:
		return replyAskYesNo, nil
	}
}

// handleFree runs keyword rules first and asks the classifier only when they
// found neither a price question nor a purchase intent.
func (r *Router) handleFree(ctx context.Context, conv Conversation, text string) (string, error) {
	shopID := conv.Channel.ShopID
	askPrice := HasPriceIntent(text)
	wantsToBuy := !askPrice && HasPurchaseIntent(text)

	product, term, err := r.catalog.Match(ctx, shopID, text)
	if err != nil {
		return "", err
	}

	var hintQty int64
	if !askPrice && !wantsToBuy && r.classifier != nil {
		guess := r.classifier.Classify(ctx, text)
		switch guess.Intent {
		case classifier.IntentGreeting:
			if product == nil {
				return replyGreeting, nil
			}
		case classifier.IntentAskPrice:
			askPrice = true
		case classifier.IntentPlaceOrder:
			wantsToBuy = true
		}
		if product == nil && guess.Product != "" {
			if product, err = r.catalog.Resolve(ctx, shopID, guess.Product); err != nil {
				return "", err
			}
		}
		hintQty = guess.Quantity
	}

	qty, hasQty := ParseQuantity(withoutProductRef(text, product, term))
	if !hasQty && hintQty > 0 {
		qty, hasQty = hintQty, true
	}

	switch {
	case askPrice && product != nil:
		return replyPrice(*product), nil
	case askPrice:
		return replyWhichProductCost, nil
	case wantsToBuy && product == nil:
		return replyWhichProduct, nil
	case wantsToBuy:
		order, err := r.orders.Start(ctx, conv.Channel, conv.PSID, *product)
		if err != nil {
			return "", err
		}
		if hasQty {
			return r.addItem(ctx, order, qty)
		}
		return replyAskQuantity(product.Name), nil
	case product != nil:
		return replyMenu(product.Name), nil
	default:
		return replyFallback, nil
	}
}
